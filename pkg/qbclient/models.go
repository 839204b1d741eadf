package qbclient

// Ref points at another QuickBooks entity.
type Ref struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

type EmailAddress struct {
	Address string `json:"Address,omitempty"`
}

type TelephoneNumber struct {
	FreeFormNumber string `json:"FreeFormNumber,omitempty"`
}

type PhysicalAddress struct {
	Line1                  string `json:"Line1,omitempty"`
	City                   string `json:"City,omitempty"`
	CountrySubDivisionCode string `json:"CountrySubDivisionCode,omitempty"`
	PostalCode             string `json:"PostalCode,omitempty"`
	Country                string `json:"Country,omitempty"`
}

type MetaData struct {
	CreateTime      string `json:"CreateTime,omitempty"`
	LastUpdatedTime string `json:"LastUpdatedTime,omitempty"`
}

// Customer is the subset of the QuickBooks customer entity the CRM writes.
type Customer struct {
	ID               string           `json:"Id,omitempty"`
	SyncToken        string           `json:"SyncToken,omitempty"`
	Sparse           bool             `json:"sparse,omitempty"`
	DisplayName      string           `json:"DisplayName,omitempty"`
	GivenName        string           `json:"GivenName,omitempty"`
	FamilyName       string           `json:"FamilyName,omitempty"`
	CompanyName      string           `json:"CompanyName,omitempty"`
	PrimaryEmailAddr *EmailAddress    `json:"PrimaryEmailAddr,omitempty"`
	PrimaryPhone     *TelephoneNumber `json:"PrimaryPhone,omitempty"`
	BillAddr         *PhysicalAddress `json:"BillAddr,omitempty"`
	Active           *bool            `json:"Active,omitempty"`
	Balance          float64          `json:"Balance,omitempty"`
	MetaData         *MetaData        `json:"MetaData,omitempty"`
}

type SalesItemLineDetail struct {
	ItemRef   Ref     `json:"ItemRef"`
	Qty       float64 `json:"Qty,omitempty"`
	UnitPrice float64 `json:"UnitPrice,omitempty"`
}

// Line types used on invoices.
const (
	LineSalesItem = "SalesItemLineDetail"
)

type Line struct {
	ID                  string               `json:"Id,omitempty"`
	LineNum             int                  `json:"LineNum,omitempty"`
	Amount              float64              `json:"Amount"`
	Description         string               `json:"Description,omitempty"`
	DetailType          string               `json:"DetailType"`
	SalesItemLineDetail *SalesItemLineDetail `json:"SalesItemLineDetail,omitempty"`
}

type MemoRef struct {
	Value string `json:"value"`
}

type Invoice struct {
	ID           string    `json:"Id,omitempty"`
	SyncToken    string    `json:"SyncToken,omitempty"`
	DocNumber    string    `json:"DocNumber,omitempty"`
	TxnDate      string    `json:"TxnDate,omitempty"`
	DueDate      string    `json:"DueDate,omitempty"`
	CustomerRef  Ref       `json:"CustomerRef"`
	Line         []Line    `json:"Line"`
	TotalAmt     float64   `json:"TotalAmt,omitempty"`
	Balance      float64   `json:"Balance,omitempty"`
	PrivateNote  string    `json:"PrivateNote,omitempty"`
	CustomerMemo *MemoRef  `json:"CustomerMemo,omitempty"`
	MetaData     *MetaData `json:"MetaData,omitempty"`
}

type LinkedTxn struct {
	TxnID   string `json:"TxnId"`
	TxnType string `json:"TxnType"`
}

type PaymentLine struct {
	Amount    float64     `json:"Amount"`
	LinkedTxn []LinkedTxn `json:"LinkedTxn,omitempty"`
}

type Payment struct {
	ID          string        `json:"Id,omitempty"`
	SyncToken   string        `json:"SyncToken,omitempty"`
	TxnDate     string        `json:"TxnDate,omitempty"`
	CustomerRef Ref           `json:"CustomerRef"`
	TotalAmt    float64       `json:"TotalAmt"`
	Line        []PaymentLine `json:"Line,omitempty"`
	PrivateNote string        `json:"PrivateNote,omitempty"`
}

// Item types accepted by the Type filter.
const (
	ItemTypeService   = "Service"
	ItemTypeInventory = "Inventory"
	ItemTypeNonInv    = "NonInventory"
)

type Item struct {
	ID          string  `json:"Id"`
	Name        string  `json:"Name"`
	Type        string  `json:"Type"`
	Active      bool    `json:"Active"`
	Description string  `json:"Description,omitempty"`
	UnitPrice   float64 `json:"UnitPrice,omitempty"`
}

type CompanyInfo struct {
	ID          string        `json:"Id,omitempty"`
	CompanyName string        `json:"CompanyName"`
	LegalName   string        `json:"LegalName,omitempty"`
	Country     string        `json:"Country,omitempty"`
	Email       *EmailAddress `json:"Email,omitempty"`
}

// QueryResponse holds the union of entity lists the query endpoint returns.
type QueryResponse struct {
	Customer      []Customer `json:"Customer,omitempty"`
	Invoice       []Invoice  `json:"Invoice,omitempty"`
	Payment       []Payment  `json:"Payment,omitempty"`
	Item          []Item     `json:"Item,omitempty"`
	StartPosition int        `json:"startPosition,omitempty"`
	MaxResults    int        `json:"maxResults,omitempty"`
	TotalCount    int        `json:"totalCount,omitempty"`
}

type queryEnvelope struct {
	QueryResponse QueryResponse `json:"QueryResponse"`
}

type customerEnvelope struct {
	Customer Customer `json:"Customer"`
}

type invoiceEnvelope struct {
	Invoice Invoice `json:"Invoice"`
}

type paymentEnvelope struct {
	Payment Payment `json:"Payment"`
}

type companyInfoEnvelope struct {
	CompanyInfo CompanyInfo `json:"CompanyInfo"`
}

// fault is the error body QuickBooks returns on 4xx.
type fault struct {
	Fault struct {
		Error []struct {
			Message string `json:"Message"`
			Detail  string `json:"Detail"`
			Code    string `json:"code"`
		} `json:"Error"`
		Type string `json:"type"`
	} `json:"Fault"`
}
