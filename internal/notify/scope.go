package notify

import "github.com/KimADR/smt-finalV2-sub001/internal/model"

// visible drops soft-deleted records and the ones p may not see.
func visible(records []model.Notification, p model.Principal) []model.Notification {
	out := make([]model.Notification, 0, len(records))
	for _, n := range records {
		if n.Deleted || !InScope(n, p) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// InScope reports whether p may see n.
//
// Unscoped principals see everything. A tenant-scoped principal sees
// notifications whose alert belongs to its entreprise, matched by id and
// then by SIRET. Without any tenant identifier it only sees notifications
// addressed to its own user id.
func InScope(n model.Notification, p model.Principal) bool {
	if !p.IsTenantScoped() {
		return true
	}
	if !p.HasTenant() {
		return n.OwnerUserID == p.UserID
	}

	if n.Alert == nil || n.Alert.Entreprise == nil {
		return false
	}
	ent := n.Alert.Entreprise
	if p.TenantID != nil && *p.TenantID != 0 && ent.ID == *p.TenantID {
		return true
	}
	return p.TenantSiret != "" && ent.Siret == p.TenantSiret
}
