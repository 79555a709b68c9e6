package billing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/fablecast/entitlement/internal/models"
	"github.com/fablecast/entitlement/pkg/types"
)

// MapPaymentStatus normalizes a raw provider payment status. Anything outside
// the recognized set is reported as failed.
func MapPaymentStatus(raw string) types.TransactionStatus {
	switch types.TransactionStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case types.TransactionStatusPending:
		return types.TransactionStatusPending
	case types.TransactionStatusCompleted:
		return types.TransactionStatusCompleted
	case types.TransactionStatusFailed:
		return types.TransactionStatusFailed
	case types.TransactionStatusRefunded:
		return types.TransactionStatusRefunded
	default:
		return types.TransactionStatusFailed
	}
}

// MapChampionType derives the ledger type of a Champion payment. A refund
// wins over the subscription type; downgrades are reported as tier changes
// together with upgrades.
func MapChampionType(status types.TransactionStatus, subscriptionType string) types.LedgerType {
	if status == types.TransactionStatusRefunded {
		return types.LedgerTypeChampionRefund
	}
	switch types.SubscriptionType(strings.ToLower(strings.TrimSpace(subscriptionType))) {
	case types.SubscriptionTypeNew:
		return types.LedgerTypeChampionNew
	case types.SubscriptionTypeRenew, types.SubscriptionTypeExtend:
		return types.LedgerTypeChampionRenew
	case types.SubscriptionTypeUpgrade, types.SubscriptionTypeDowngrade:
		return types.LedgerTypeChampionUpgrade
	default:
		return types.LedgerTypeChampionNew
	}
}

func MapKarmaType(raw string) types.LedgerType {
	switch types.KarmaTransactionType(strings.ToLower(strings.TrimSpace(raw))) {
	case types.KarmaTransactionTypePurchase:
		return types.LedgerTypePurchase
	case types.KarmaTransactionTypeConsumption:
		return types.LedgerTypeConsumption
	case types.KarmaTransactionTypeReward:
		return types.LedgerTypeReward
	case types.KarmaTransactionTypeRefund:
		return types.LedgerTypeRefund
	default:
		return types.LedgerTypeReward
	}
}

// MapKarmaStatus passes recognized statuses through and collapses the rest
// to failed.
func MapKarmaStatus(raw string) types.TransactionStatus {
	return MapPaymentStatus(raw)
}

// parseSnapshot reads a membership snapshot, treating absent or malformed
// JSON as no snapshot.
func parseSnapshot(raw *string) *models.MembershipSnapshot {
	if raw == nil {
		return nil
	}
	s := strings.TrimSpace(*raw)
	if s == "" || s == "null" {
		return nil
	}
	var snap models.MembershipSnapshot
	if err := json.Unmarshal([]byte(s), &snap); err != nil {
		return nil
	}
	if snap.TierLevel == 0 && snap.EndDate.IsZero() {
		return nil
	}
	return &snap
}

func snapshotLabel(s *models.MembershipSnapshot) *string {
	if s == nil {
		return nil
	}
	l := fmt.Sprintf("Tier%d until %s", s.TierLevel, s.EndDate.UTC().Format(time.DateOnly))
	return &l
}

// describeChampion builds the labels and description of a Champion row.
func describeChampion(tierLevel int, tierName string, before, after *models.MembershipSnapshot) (desc string, beforeLabel, afterLabel *string) {
	beforeLabel, afterLabel = snapshotLabel(before), snapshotLabel(after)
	switch {
	case before != nil && after != nil && before.TierLevel != after.TierLevel:
		desc = fmt.Sprintf("Tier%d → Tier%d", before.TierLevel, after.TierLevel)
	case before != nil || after != nil:
		desc = "Subscription"
	default:
		desc = strings.TrimSpace(fmt.Sprintf("Tier%d %s", tierLevel, tierName))
	}
	return desc, beforeLabel, afterLabel
}

// predicate is a WHERE fragment over raw ledger columns. The builders below
// select exactly the rows the Map functions above send to a given value, so
// filters can run in the database.
type predicate struct {
	sql  string
	args []any
}

func (p predicate) apply(db *gorm.DB) *gorm.DB {
	return db.Where(p.sql, p.args...)
}

func allOf(ps ...predicate) predicate {
	return join(" AND ", ps)
}

func anyOf(ps ...predicate) predicate {
	if len(ps) == 0 {
		return predicate{sql: "1 = 0"}
	}
	return join(" OR ", ps)
}

func join(sep string, ps []predicate) predicate {
	parts := make([]string, len(ps))
	var args []any
	for i, p := range ps {
		parts[i] = "(" + p.sql + ")"
		args = append(args, p.args...)
	}
	return predicate{sql: "(" + strings.Join(parts, sep) + ")", args: args}
}

func normalized(col string) string {
	return fmt.Sprintf("LOWER(TRIM(%s))", col)
}

func equals(col string, v string) predicate {
	return predicate{sql: normalized(col) + " = ?", args: []any{v}}
}

func oneOf(col string, vs ...string) predicate {
	return predicate{sql: normalized(col) + " IN ?", args: []any{vs}}
}

func noneOf(col string, vs ...string) predicate {
	return predicate{sql: normalized(col) + " NOT IN ?", args: []any{vs}}
}

// contains matches q anywhere in col, case-insensitively. q must already be
// lower case.
func contains(col, q string) predicate {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return predicate{sql: fmt.Sprintf(`LOWER(%s) LIKE ? ESCAPE '\'`, col), args: []any{"%" + r.Replace(q) + "%"}}
}

// statusIs selects raw statuses MapPaymentStatus maps to st.
func statusIs(col string, st types.TransactionStatus) predicate {
	if st == types.TransactionStatusFailed {
		return noneOf(col, string(types.TransactionStatusPending), string(types.TransactionStatusCompleted), string(types.TransactionStatusRefunded))
	}
	return equals(col, string(st))
}

// karmaTypeIs selects raw transaction types MapKarmaType maps to t.
func karmaTypeIs(col string, t types.LedgerType) predicate {
	switch t {
	case types.LedgerTypePurchase, types.LedgerTypeConsumption, types.LedgerTypeRefund:
		return equals(col, string(t))
	case types.LedgerTypeReward:
		return noneOf(col, string(types.KarmaTransactionTypePurchase), string(types.KarmaTransactionTypeConsumption), string(types.KarmaTransactionTypeRefund))
	}
	return predicate{sql: "1 = 0"}
}

// championTypeIs selects rows MapChampionType maps to t.
func championTypeIs(statusCol, typeCol string, t types.LedgerType) predicate {
	refunded := equals(statusCol, string(types.TransactionStatusRefunded))
	notRefunded := predicate{sql: "NOT (" + refunded.sql + ")", args: refunded.args}
	switch t {
	case types.LedgerTypeChampionRefund:
		return refunded
	case types.LedgerTypeChampionRenew:
		return allOf(notRefunded, oneOf(typeCol, string(types.SubscriptionTypeRenew), string(types.SubscriptionTypeExtend)))
	case types.LedgerTypeChampionUpgrade:
		return allOf(notRefunded, oneOf(typeCol, string(types.SubscriptionTypeUpgrade), string(types.SubscriptionTypeDowngrade)))
	case types.LedgerTypeChampionNew:
		return allOf(notRefunded, noneOf(typeCol,
			string(types.SubscriptionTypeRenew), string(types.SubscriptionTypeExtend),
			string(types.SubscriptionTypeUpgrade), string(types.SubscriptionTypeDowngrade)))
	}
	return predicate{sql: "1 = 0"}
}

// typesMatching lists the ledger types of a source whose name contains q.
func typesMatching(source types.LedgerSource, q string) []types.LedgerType {
	var out []types.LedgerType
	for _, t := range ledgerTypes {
		if s, _ := t.Source(); s == source && strings.Contains(string(t), q) {
			out = append(out, t)
		}
	}
	return out
}

var ledgerTypes = []types.LedgerType{
	types.LedgerTypePurchase,
	types.LedgerTypeConsumption,
	types.LedgerTypeReward,
	types.LedgerTypeRefund,
	types.LedgerTypeChampionNew,
	types.LedgerTypeChampionRenew,
	types.LedgerTypeChampionUpgrade,
	types.LedgerTypeChampionRefund,
}
