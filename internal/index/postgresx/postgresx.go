// Package postgresx implements the index provider contract on PostgreSQL.
// Documents are rows in a field-per-row table, predicates compile to EXISTS
// subqueries, and TEXT-mapped fields match through tsvector full-text
// search. It is the only backend with raw-query support: the native syntax
// is a SQL boolean fragment over the document rows.
package postgresx

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/BennyH26/titan/internal/index"
	"github.com/BennyH26/titan/internal/index/tokenizer"
	"github.com/BennyH26/titan/pkg/config"
	"github.com/BennyH26/titan/pkg/errors"
	"github.com/BennyH26/titan/pkg/postgres"
)

const backendName = "postgres"

// Factory option keys.
const (
	OptHost     = "host"
	OptPort     = "port"
	OptDatabase = "database"
	OptUser     = "user"
	OptPassword = "password"
	OptSSLMode  = "sslMode"
)

func init() {
	index.RegisterBackend(backendName, func(ctx context.Context, options map[string]string) (index.Provider, error) {
		port, _ := strconv.Atoi(options[OptPort])
		if port == 0 {
			port = 5432
		}
		sslMode := options[OptSSLMode]
		if sslMode == "" {
			sslMode = "disable"
		}
		client, err := postgres.New(config.PostgresConfig{
			Host:     options[OptHost],
			Port:     port,
			Database: options[OptDatabase],
			User:     options[OptUser],
			Password: options[OptPassword],
			SSLMode:  sslMode,
		})
		if err != nil {
			return nil, errors.Unavailable(backendName, "open", err)
		}
		return New(client)
	})
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS index_documents (
	store      TEXT NOT NULL,
	doc_id     TEXT NOT NULL,
	field      TEXT NOT NULL,
	sval       TEXT,
	ival       BIGINT,
	dval       DOUBLE PRECISION,
	expires_at TIMESTAMPTZ,
	PRIMARY KEY (store, doc_id, field)
);
CREATE INDEX IF NOT EXISTS idx_index_documents_field
	ON index_documents (store, field);
CREATE INDEX IF NOT EXISTS idx_index_documents_sval_fts
	ON index_documents USING gin (to_tsvector('simple', coalesce(sval, '')));

CREATE TABLE IF NOT EXISTS index_keys (
	store     TEXT NOT NULL,
	field     TEXT NOT NULL,
	data_type TEXT NOT NULL,
	mapping   TEXT NOT NULL,
	PRIMARY KEY (store, field)
);
`

// Provider translates index queries to SQL over a field-per-row table.
// Mutation batches run inside database transactions, serialized through
// the commit mutex so they apply in arrival order.
type Provider struct {
	client *postgres.Client
	caps   index.CapabilityTable
	logger *slog.Logger

	commitMu sync.Mutex
	schema   singleflight.Group
	ready    bool
}

// New wraps an already-connected Postgres client and provisions the schema.
func New(client *postgres.Client) (*Provider, error) {
	p := &Provider{
		client: client,
		caps:   capabilities(),
		logger: slog.Default().With("component", "index-postgres"),
	}
	if err := p.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return p, nil
}

// capabilities narrows the default table to what translates to SQL: no
// geoshapes, and no regex matching inside tokenized text.
func capabilities() index.CapabilityTable {
	table := index.CapabilityTable{}
	for _, t := range []index.DataType{
		index.TypeLong, index.TypeDouble, index.TypeInteger,
		index.TypeShort, index.TypeByte, index.TypeFloat,
	} {
		table[index.CapabilityKey{DataType: t, Mapping: index.MappingDefault}] = index.ComparisonOperators()
	}
	tokenOps := index.Operators(index.OpTextContains, index.OpTextContainsPrefix)
	fullOps := index.FullTextOperators()
	table[index.CapabilityKey{DataType: index.TypeString, Mapping: index.MappingDefault}] = tokenOps
	table[index.CapabilityKey{DataType: index.TypeString, Mapping: index.MappingText}] = tokenOps
	table[index.CapabilityKey{DataType: index.TypeString, Mapping: index.MappingString}] = fullOps
	table[index.CapabilityKey{DataType: index.TypeString, Mapping: index.MappingTextString}] = tokenOps.Union(fullOps)
	return table
}

func (p *Provider) ensureSchema(ctx context.Context) error {
	if p.ready {
		return nil
	}
	_, err, _ := p.schema.Do("schema", func() (any, error) {
		if _, err := p.client.DB.ExecContext(ctx, schemaDDL); err != nil {
			return nil, errors.Unavailable(backendName, "schema", err)
		}
		p.ready = true
		return nil, nil
	})
	return err
}

func (p *Provider) Supports(ki index.KeyInformation) bool {
	return p.caps.Supports(ki)
}

func (p *Provider) SupportsOperator(ki index.KeyInformation, op index.Operator) bool {
	return p.caps.SupportsOperator(ki, op)
}

func (p *Provider) Register(ctx context.Context, store, field string, ki index.KeyInformation) error {
	if !p.caps.Supports(ki) {
		return errors.Newf(errors.ErrUnsupportedPredicate, backendName, "register",
			"type %s with mapping %s is not indexable", ki.DataType, ki.Mapping())
	}
	_, err := p.client.DB.ExecContext(ctx, `
		INSERT INTO index_keys (store, field, data_type, mapping)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (store, field) DO UPDATE SET data_type = $3, mapping = $4`,
		store, field, ki.DataType.String(), ki.Mapping().String())
	if err != nil {
		return errors.Unavailable(backendName, "register", err)
	}
	return nil
}

func (p *Provider) Mutate(ctx context.Context, mutations []index.Mutation, keys index.KeyRetriever) error {
	p.commitMu.Lock()
	defer p.commitMu.Unlock()
	err := p.client.InTx(ctx, func(tx *sql.Tx) error {
		for i := range mutations {
			if err := applyMutation(ctx, tx, &mutations[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Unavailable(backendName, "mutate", err)
	}
	return nil
}

func applyMutation(ctx context.Context, tx *sql.Tx, m *index.Mutation) error {
	if m.Deleted {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM index_documents WHERE store = $1 AND doc_id = $2`,
			m.Store, m.DocID); err != nil {
			return err
		}
	}
	for _, del := range m.Deletions {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM index_documents WHERE store = $1 AND doc_id = $2 AND field = $3`,
			m.Store, m.DocID, del.Field); err != nil {
			return err
		}
	}
	for _, add := range m.Additions {
		sval, ival, dval, err := columnValues(add.Value)
		if err != nil {
			return err
		}
		var expires any
		if add.TTLSeconds > 0 {
			expires = time.Now().Add(time.Duration(add.TTLSeconds) * time.Second)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO index_documents (store, doc_id, field, sval, ival, dval, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (store, doc_id, field)
			DO UPDATE SET sval = $4, ival = $5, dval = $6, expires_at = $7`,
			m.Store, m.DocID, add.Field, sval, ival, dval, expires); err != nil {
			return err
		}
	}
	return nil
}

// columnValues spreads a canonical value across the typed columns. Integer
// values land in both ival and dval so mixed numeric comparisons work.
func columnValues(value any) (sval, ival, dval any, err error) {
	switch v := index.NormalizeValue(value).(type) {
	case string:
		return v, nil, nil, nil
	case int64:
		return nil, v, float64(v), nil
	case float64:
		return nil, nil, v, nil
	default:
		return nil, nil, nil, errors.Newf(errors.ErrUnsupportedPredicate, backendName, "mutate",
			"value type %T cannot be stored", value)
	}
}

func (p *Provider) Query(ctx context.Context, query index.IndexQuery, keys index.KeyRetriever) ([]string, error) {
	b := &sqlBuilder{args: []any{query.Store}}
	where, err := b.condition(query.Condition)
	if err != nil {
		return nil, err
	}

	orderClauses := make([]string, 0, len(query.Orders)+1)
	for _, order := range query.Orders {
		orderClauses = append(orderClauses, fmt.Sprintf(`(
			SELECT w.%s FROM index_documents w
			WHERE w.store = $1 AND w.doc_id = d.doc_id AND w.field = %s
		) %s NULLS LAST`, orderColumn(order.DataType), b.bind(order.Field), order.Direction))
	}
	orderClauses = append(orderClauses, "d.doc_id")

	var sb strings.Builder
	sb.WriteString(`SELECT d.doc_id FROM (
		SELECT DISTINCT doc_id FROM index_documents
		WHERE store = $1 AND (expires_at IS NULL OR expires_at > now())
	) d WHERE `)
	sb.WriteString(where)
	sb.WriteString(" ORDER BY ")
	sb.WriteString(strings.Join(orderClauses, ", "))
	if query.Limit > 0 {
		sb.WriteString(" LIMIT " + strconv.Itoa(query.Limit))
	}
	if query.Offset > 0 {
		sb.WriteString(" OFFSET " + strconv.Itoa(query.Offset))
	}

	rows, err := p.client.DB.QueryContext(ctx, sb.String(), b.args...)
	if err != nil {
		return nil, errors.Unavailable(backendName, "query", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Unavailable(backendName, "query", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Unavailable(backendName, "query", err)
	}
	return ids, nil
}

func orderColumn(t index.DataType) string {
	switch {
	case t == index.TypeLong, t == index.TypeInteger, t == index.TypeShort, t == index.TypeByte:
		return "ival"
	case t == index.TypeDouble, t == index.TypeFloat:
		return "dval"
	default:
		return "sval"
	}
}

// sqlBuilder accumulates positional bind arguments while compiling a
// predicate tree to a boolean expression over the alias d.
type sqlBuilder struct {
	args []any
}

func (b *sqlBuilder) bind(value any) string {
	b.args = append(b.args, value)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *sqlBuilder) condition(cond index.Condition) (string, error) {
	switch c := cond.(type) {
	case index.Leaf:
		return b.leaf(c)
	case index.And:
		return b.junction(c, " AND ", "TRUE")
	case index.Or:
		return b.junction(c, " OR ", "FALSE")
	case index.Not:
		child, err := b.condition(c.Child)
		if err != nil {
			return "", err
		}
		return "NOT (" + child + ")", nil
	default:
		return "", errors.Newf(errors.ErrUnsupportedPredicate, backendName, "query",
			"unknown condition type %T", cond)
	}
}

func (b *sqlBuilder) junction(children []index.Condition, sep, empty string) (string, error) {
	if len(children) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(children))
	for _, child := range children {
		part, err := b.condition(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (b *sqlBuilder) leaf(l index.Leaf) (string, error) {
	match, err := b.valueMatch(l)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`EXISTS (
		SELECT 1 FROM index_documents f
		WHERE f.store = $1 AND f.doc_id = d.doc_id AND f.field = %s
		AND (f.expires_at IS NULL OR f.expires_at > now())
		AND %s
	)`, b.bind(l.Field), match), nil
}

func (b *sqlBuilder) valueMatch(l index.Leaf) (string, error) {
	value := index.NormalizeValue(l.Value)
	switch l.Op {
	case index.OpEqual, index.OpNotEqual, index.OpLessThan, index.OpLessThanEqual,
		index.OpGreaterThan, index.OpGreaterThanEqual:
		return b.comparison(l.Op, value)
	case index.OpTextContains:
		return b.tsQuery(value, false)
	case index.OpTextContainsPrefix:
		return b.tsQuery(value, true)
	case index.OpTextPrefix:
		s, ok := value.(string)
		if !ok {
			return "", badValue(l.Op, value)
		}
		return "f.sval LIKE " + b.bind(likeEscape(s)+"%") + " ESCAPE '\\'", nil
	case index.OpTextRegex:
		s, ok := value.(string)
		if !ok {
			return "", badValue(l.Op, value)
		}
		return "f.sval ~ " + b.bind("^(?:"+s+")$"), nil
	default:
		return "", errors.Newf(errors.ErrUnsupportedPredicate, backendName, "query",
			"operator %s has no SQL translation", l.Op)
	}
}

func (b *sqlBuilder) comparison(op index.Operator, value any) (string, error) {
	sqlOp := map[index.Operator]string{
		index.OpEqual:            "=",
		index.OpNotEqual:         "<>",
		index.OpLessThan:         "<",
		index.OpLessThanEqual:    "<=",
		index.OpGreaterThan:      ">",
		index.OpGreaterThanEqual: ">=",
	}[op]
	switch v := value.(type) {
	case string:
		return "f.sval " + sqlOp + " " + b.bind(v), nil
	case int64:
		return "f.ival " + sqlOp + " " + b.bind(v), nil
	case float64:
		return "f.dval " + sqlOp + " " + b.bind(v), nil
	default:
		return "", badValue(op, value)
	}
}

// tsQuery compiles a contains predicate to a tsvector match. The query
// value is tokenized client-side so the semantics stay aligned with the
// document-evaluating backends: every token must be present, and in prefix
// mode each token matches as a prefix.
func (b *sqlBuilder) tsQuery(value any, prefix bool) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", badValue(index.OpTextContains, value)
	}
	tokens := tokenizer.Tokenize(s)
	if len(tokens) == 0 {
		return "FALSE", nil
	}
	if prefix {
		for i, t := range tokens {
			tokens[i] = t + ":*"
		}
	}
	expr := strings.Join(tokens, " & ")
	return "to_tsvector('simple', coalesce(f.sval, '')) @@ to_tsquery('simple', " + b.bind(expr) + ")", nil
}

func likeEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

func badValue(op index.Operator, value any) error {
	return errors.Newf(errors.ErrUnsupportedPredicate, backendName, "query",
		"operator %s cannot be applied to value of type %T", op, value)
}

// QueryRaw runs a native query: a SQL boolean fragment over the document
// alias d, with $2, $3, ... bound to the query parameters in order.
func (p *Provider) QueryRaw(ctx context.Context, query index.RawQuery, keys index.KeyRetriever) ([]index.RawResult, error) {
	args := make([]any, 0, len(query.Parameters)+1)
	args = append(args, query.Store)
	for _, param := range query.Parameters {
		args = append(args, param.Value)
	}

	var sb strings.Builder
	sb.WriteString(`SELECT d.doc_id FROM (
		SELECT DISTINCT doc_id FROM index_documents
		WHERE store = $1 AND (expires_at IS NULL OR expires_at > now())
	) d WHERE `)
	sb.WriteString(query.Query)
	sb.WriteString(" ORDER BY d.doc_id")
	if query.Limit > 0 {
		sb.WriteString(" LIMIT " + strconv.Itoa(query.Limit))
	}
	if query.Offset > 0 {
		sb.WriteString(" OFFSET " + strconv.Itoa(query.Offset))
	}

	rows, err := p.client.DB.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, errors.Unavailable(backendName, "raw_query", err)
	}
	defer rows.Close()
	var results []index.RawResult
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Unavailable(backendName, "raw_query", err)
		}
		results = append(results, index.RawResult{DocID: id, Score: 1.0})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Unavailable(backendName, "raw_query", err)
	}
	return results, nil
}

func (p *Provider) Restore(ctx context.Context, docs index.RestoreSet, keys index.KeyRetriever) error {
	p.commitMu.Lock()
	defer p.commitMu.Unlock()
	err := p.client.InTx(ctx, func(tx *sql.Tx) error {
		for storeName, byDoc := range docs {
			for docID, entries := range byDoc {
				if _, err := tx.ExecContext(ctx,
					`DELETE FROM index_documents WHERE store = $1 AND doc_id = $2`,
					storeName, docID); err != nil {
					return err
				}
				m := index.Mutation{Store: storeName, DocID: docID, Additions: entries}
				if err := applyMutation(ctx, tx, &m); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return errors.Unavailable(backendName, "restore", err)
	}
	return nil
}

func (p *Provider) ClearStorage(ctx context.Context) error {
	p.commitMu.Lock()
	defer p.commitMu.Unlock()
	if _, err := p.client.DB.ExecContext(ctx,
		`TRUNCATE index_documents, index_keys`); err != nil {
		return errors.Unavailable(backendName, "clear", err)
	}
	return nil
}

// Ping lets the health checker probe the backend connection.
func (p *Provider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *Provider) Features() index.Features {
	return index.Features{
		SupportsRawQueries:  true,
		SupportsDocumentTTL: true,
		SortableTypes: []index.DataType{
			index.TypeString, index.TypeLong, index.TypeDouble,
			index.TypeInteger, index.TypeShort, index.TypeByte, index.TypeFloat,
		},
	}
}

func (p *Provider) Close() error {
	return p.client.Close()
}
