package storage

// Match returns the maximal contiguous sub-sequence of sortedEntries whose
// column lies in [query.Start, query.End), truncated from the low end to
// query.Limit entries when a limit is set.
//
// sortedEntries must be sorted ascending by column; duplicates are allowed.
// The result aliases the input slice, so no entries are copied. Match is
// stateless and safe for concurrent use; it runs two independent binary
// searches, each O(log n).
func Match(query SliceQuery, sortedEntries EntryList) EntryList {
	lowestStartMatch := len(sortedEntries) // inclusive
	highestEndMatch := -1                  // inclusive

	// Find the lowest index i such that query.Start <= sortedEntries[i].Column.
	low, high := 0, len(sortedEntries)-1
	for low <= high {
		mid := int(uint(low+high) >> 1)
		cmpStart := query.Start.Compare(sortedEntries[mid].Column)
		if cmpStart > 0 {
			// Query lower bound exceeds the entry: no match at mid.
			if lowestStartMatch == mid+1 {
				break
			}
			low = mid + 1
		} else {
			// Entry equals or exceeds the lower bound: a match, but not
			// necessarily the lowest one.
			if mid < lowestStartMatch {
				lowestStartMatch = mid
			}
			high = mid - 1
		}
	}

	// No entry is >= query.Start, so the upper bound search cannot produce
	// a match either.
	if lowestStartMatch == len(sortedEntries) {
		return nil
	}

	// Find the highest index j such that sortedEntries[j].Column < query.End.
	low, high = 0, len(sortedEntries)-1
	for low <= high {
		mid := int(uint(low+high) >> 1)
		cmpEnd := query.End.Compare(sortedEntries[mid].Column)
		if cmpEnd > 0 {
			if mid > highestEndMatch {
				highestEndMatch = mid
			}
			low = mid + 1
		} else {
			if highestEndMatch == mid-1 {
				break
			}
			high = mid - 1
		}
	}

	if highestEndMatch < lowestStartMatch {
		return nil
	}

	end := highestEndMatch + 1
	if query.HasLimit() && end > lowestStartMatch+query.Limit {
		end = lowestStartMatch + query.Limit
	}
	return sortedEntries[lowestStartMatch:end]
}
