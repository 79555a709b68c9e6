package types

type KarmaTransactionType string

const (
	KarmaTransactionTypePurchase    KarmaTransactionType = "purchase"
	KarmaTransactionTypeConsumption KarmaTransactionType = "consumption"
	KarmaTransactionTypeReward      KarmaTransactionType = "reward"
	KarmaTransactionTypeRefund      KarmaTransactionType = "refund"
)

// IsDebit reports whether the type removes Karma from a wallet.
func (t KarmaTransactionType) IsDebit() bool {
	return t == KarmaTransactionTypeConsumption
}

func (t KarmaTransactionType) Valid() bool {
	switch t {
	case KarmaTransactionTypePurchase, KarmaTransactionTypeConsumption, KarmaTransactionTypeReward, KarmaTransactionTypeRefund:
		return true
	}
	return false
}

// TransactionStatus is shared by Karma transactions and Champion payments.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

type SubscriptionType string

const (
	SubscriptionTypeNew       SubscriptionType = "new"
	SubscriptionTypeRenew     SubscriptionType = "renew"
	SubscriptionTypeExtend    SubscriptionType = "extend"
	SubscriptionTypeUpgrade   SubscriptionType = "upgrade"
	SubscriptionTypeDowngrade SubscriptionType = "downgrade"
)

type ChampionStatus string

const (
	ChampionStatusInvalid   ChampionStatus = "invalid"
	ChampionStatusSubmitted ChampionStatus = "submitted"
	ChampionStatusApproved  ChampionStatus = "approved"
	ChampionStatusRejected  ChampionStatus = "rejected"
)

type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

type UnlockMethod string

const (
	UnlockMethodKarma      UnlockMethod = "karma"
	UnlockMethodTimeUnlock UnlockMethod = "time_unlock"
)

// UnlockStatus is the persisted state of a chapter unlock row.
type UnlockStatus string

const (
	UnlockStatusPending  UnlockStatus = "pending"
	UnlockStatusUnlocked UnlockStatus = "unlocked"
)

// UnlockState is the resolved state of a (user, chapter) pair. NONE means no
// row exists.
type UnlockState string

const (
	UnlockStateNone     UnlockState = "none"
	UnlockStatePending  UnlockState = "pending"
	UnlockStateUnlocked UnlockState = "unlocked"
)

type LedgerSource string

const (
	LedgerSourceKarma    LedgerSource = "karma"
	LedgerSourceChampion LedgerSource = "champion"
)

// LedgerType is the normalized type of a billing ledger row.
type LedgerType string

const (
	LedgerTypePurchase        LedgerType = "purchase"
	LedgerTypeConsumption     LedgerType = "consumption"
	LedgerTypeReward          LedgerType = "reward"
	LedgerTypeRefund          LedgerType = "refund"
	LedgerTypeChampionNew     LedgerType = "champion_new"
	LedgerTypeChampionRenew   LedgerType = "champion_renew"
	LedgerTypeChampionUpgrade LedgerType = "champion_upgrade"
	LedgerTypeChampionRefund  LedgerType = "champion_refund"
)

// Source reports which ledger produces rows of this type.
func (t LedgerType) Source() (LedgerSource, bool) {
	switch t {
	case LedgerTypePurchase, LedgerTypeConsumption, LedgerTypeReward, LedgerTypeRefund:
		return LedgerSourceKarma, true
	case LedgerTypeChampionNew, LedgerTypeChampionRenew, LedgerTypeChampionUpgrade, LedgerTypeChampionRefund:
		return LedgerSourceChampion, true
	}
	return "", false
}
