package apple_notification

import "github.com/golang-jwt/jwt"

// AppStoreServerRequest is the body Apple posts to the notification URL.
type AppStoreServerRequest struct {
	SignedPayload string `json:"signedPayload"`
}

type NotificationHeader struct {
	Alg string   `json:"alg"`
	X5c []string `json:"x5c"`
}

// AppStoreServerNotification is a verified App Store Server Notification V2.
type AppStoreServerNotification struct {
	appleRootCert      string
	Payload            *NotificationPayload
	TransactionInfo    *TransactionInfo
	RenewalInfo        *RenewalInfo
	IsValid            bool
	IsTestNotification bool
	IsSandbox          bool
}

type NotificationPayload struct {
	jwt.StandardClaims
	NotificationType string           `json:"notificationType"`
	Subtype          string           `json:"subtype"`
	NotificationUUID string           `json:"notificationUUID"`
	Version          string           `json:"version"`
	SignedDate       int64            `json:"signedDate"`
	Data             NotificationData `json:"data"`
}

type NotificationData struct {
	AppAppleId            int64  `json:"appAppleId"`
	BundleId              string `json:"bundleId"`
	BundleVersion         string `json:"bundleVersion"`
	Environment           string `json:"environment"`
	SignedTransactionInfo string `json:"signedTransactionInfo"`
	SignedRenewalInfo     string `json:"signedRenewalInfo"`
	Status                int32  `json:"status"`
}

type TransactionInfo struct {
	jwt.StandardClaims
	AppAccountToken             string `json:"appAccountToken"`
	BundleId                    string `json:"bundleId"`
	Currency                    string `json:"currency"`
	Environment                 string `json:"environment"`
	ExpiresDate                 int64  `json:"expiresDate"`
	InAppOwnershipType          string `json:"inAppOwnershipType"`
	OriginalPurchaseDate        int64  `json:"originalPurchaseDate"`
	OriginalTransactionId       string `json:"originalTransactionId"`
	Price                       int64  `json:"price"`
	ProductId                   string `json:"productId"`
	PurchaseDate                int64  `json:"purchaseDate"`
	Quantity                    int32  `json:"quantity"`
	RevocationDate              int64  `json:"revocationDate"`
	RevocationReason            int32  `json:"revocationReason"`
	SignedDate                  int64  `json:"signedDate"`
	SubscriptionGroupIdentifier string `json:"subscriptionGroupIdentifier"`
	TransactionId               string `json:"transactionId"`
	Type                        string `json:"type"`
}

type RenewalInfo struct {
	jwt.StandardClaims
	AutoRenewProductId    string `json:"autoRenewProductId"`
	AutoRenewStatus       int32  `json:"autoRenewStatus"`
	Environment           string `json:"environment"`
	ExpirationIntent      int32  `json:"expirationIntent"`
	OriginalTransactionId string `json:"originalTransactionId"`
	ProductId             string `json:"productId"`
	RenewalDate           int64  `json:"renewalDate"`
	SignedDate            int64  `json:"signedDate"`
}
