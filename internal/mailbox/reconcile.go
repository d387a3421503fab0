package mailbox

import "sort"

// Reconcile turns a raw batch of remote messages into the canonical local list
// for folder: duplicates collapse to their last occurrence, messages outside the
// folder are dropped and the rest are sorted newest first.
//
// The output is always a fresh slice; batch is not modified.
func Reconcile(batch []Message, folder Folder) []Message {
	out := make([]Message, 0, len(batch))
	index := make(map[string]int, len(batch))
	for _, m := range batch {
		if i, ok := index[m.ID]; ok {
			out[i] = m
			continue
		}
		index[m.ID] = len(out)
		out = append(out, m)
	}

	filtered := out[:0]
	for _, m := range out {
		if folder.Contains(m.Labels) {
			filtered = append(filtered, m)
		}
	}

	Sort(filtered)
	return filtered
}

// Sort orders msgs canonically in place
func Sort(msgs []Message) {
	keys := make(map[string]int64, len(msgs))
	for _, m := range msgs {
		keys[m.ID] = Resolve(m)
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return lessKeyed(msgs[i], keys[msgs[i].ID], msgs[j], keys[msgs[j].ID])
	})
}

// Less is the canonical ordering: resolved timestamp descending, then id descending.
func Less(a, b Message) bool {
	return lessKeyed(a, Resolve(a), b, Resolve(b))
}

func lessKeyed(a Message, ta int64, b Message, tb int64) bool {
	if ta != tb {
		return ta > tb
	}
	return a.ID > b.ID
}

// IndexOf returns the position of id in msgs or -1
func IndexOf(msgs []Message, id string) int {
	for i := range msgs {
		if msgs[i].ID == id {
			return i
		}
	}
	return -1
}
