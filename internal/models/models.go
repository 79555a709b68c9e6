package models

// All lists every model owned by the ledger schema, in creation order.
func All() []any {
	return []any{
		&User{},
		&Novel{},
		&Chapter{},
		&ChampionTier{},
		&ChampionSubscription{},
		&ChampionTransaction{},
		&ChapterUnlock{},
		&KarmaTransaction{},
		&PaymentNotificationLog{},
	}
}
