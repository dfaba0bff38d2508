package notify

import "github.com/KimADR/smt-finalV2-sub001/internal/model"

// Dedup reduces records (most recent first) to one record per business key.
//
// The first record seen for a key wins. Alert-keyed records are returned
// before id-keyed records, each group in first-occurrence order, so a
// notification that gains an alert reference after confirmation supersedes
// its id-only form.
func Dedup(records []model.Notification) []model.Notification {
	if len(records) == 0 {
		return []model.Notification{}
	}

	seenAlert := make(map[int64]bool, len(records))
	seenID := make(map[int64]bool)
	var byAlert, byID []model.Notification

	for _, n := range records {
		key := n.BusinessKey()
		switch key.Kind {
		case model.KeyAlert:
			if seenAlert[key.Value] {
				continue
			}
			seenAlert[key.Value] = true
			byAlert = append(byAlert, n)
		default:
			if seenID[key.Value] {
				continue
			}
			seenID[key.Value] = true
			byID = append(byID, n)
		}
	}

	out := make([]model.Notification, 0, len(byAlert)+len(byID))
	out = append(out, byAlert...)
	return append(out, byID...)
}
