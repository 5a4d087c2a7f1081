package quickbooks

// Ref is a QuickBooks reference to another entity
type Ref struct {
	Value string `json:"value"`
	Name  string `json:"name"`
}

func refName(r *Ref) string {
	if r == nil {
		return ""
	}
	return r.Name
}

// Purchase is an expense transaction
type Purchase struct {
	ID          string  `json:"Id"`
	TxnDate     string  `json:"TxnDate"`
	TotalAmt    float64 `json:"TotalAmt"`
	PrivateNote string  `json:"PrivateNote"`
	Memo        string  `json:"Memo"`
	AccountRef  *Ref    `json:"AccountRef"`
	EntityRef   *Ref    `json:"EntityRef"`
	ClassRef    *Ref    `json:"ClassRef"`
}

// Deposit is a bank deposit, usually a platform payout
type Deposit struct {
	ID          string  `json:"Id"`
	TxnDate     string  `json:"TxnDate"`
	TotalAmt    float64 `json:"TotalAmt"`
	PrivateNote string  `json:"PrivateNote"`
	ClassRef    *Ref    `json:"ClassRef"`
}

// Account is a chart-of-accounts entry
type Account struct {
	ID             string  `json:"Id"`
	Name           string  `json:"Name"`
	AccountType    string  `json:"AccountType"`
	AccountSubType string  `json:"AccountSubType"`
	CurrentBalance float64 `json:"CurrentBalance"`
	Active         bool    `json:"Active"`
}
