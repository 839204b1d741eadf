package qbsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"roof-crm/internal/config"
	"roof-crm/internal/features/crm"
	"roof-crm/internal/features/qbconnection"
	"roof-crm/internal/metrics"
	"roof-crm/pkg/qbclient"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// PlaceholderItem is used when the company has no active service item and
// none has been configured.
var PlaceholderItem = qbclient.Ref{Value: "1", Name: "Services"}

type SyncService interface {
	SyncContactToCustomer(ctx context.Context, tenantID, contactID string) Result
	SyncProjectToInvoice(ctx context.Context, tenantID, projectID string) Result
	BulkSyncContacts(ctx context.Context, tenantID string) (*BulkResult, error)
	ListLogs(ctx context.Context, tenantID string, filter LogFilter) ([]SyncLogEntry, error)
	ListMappings(ctx context.Context, tenantID, crmEntityType string, limit int) ([]EntityMapping, error)
	ExportLogs(ctx context.Context, tenantID string, filter LogFilter, w io.Writer) error
}

// ClientSource hands out authenticated API clients and the cached default
// invoice item. qbconnection.TokenStore satisfies it.
type ClientSource interface {
	GetClient(ctx context.Context, tenantID string) (*qbclient.Client, error)
	DefaultItem(ctx context.Context, tenantID string) (*qbclient.Ref, error)
	SetDefaultItem(ctx context.Context, tenantID string, item qbclient.Ref) error
}

type SyncServiceImpl struct {
	Contacts      crm.ContactRepository
	Projects      crm.ProjectRepository
	MappingRepo   MappingRepository
	LogRepo       SyncLogRepository
	Clients       ClientSource
	Logger        *zap.Logger
	InvoiceResync InvoiceResyncPolicy
}

func NewSyncService(
	contacts crm.ContactRepository,
	projects crm.ProjectRepository,
	mappingRepo MappingRepository,
	logRepo SyncLogRepository,
	tokenStore qbconnection.TokenStore,
	logger *zap.Logger,
	cfg *config.Config,
) SyncService {
	return &SyncServiceImpl{
		Contacts:      contacts,
		Projects:      projects,
		MappingRepo:   mappingRepo,
		LogRepo:       logRepo,
		Clients:       tokenStore,
		Logger:        logger,
		InvoiceResync: ParseInvoiceResyncPolicy(cfg.QuickBooks.InvoiceResync),
	}
}

// SyncContactToCustomer pushes one contact to QuickBooks. It updates the
// mapped customer, links to an existing customer with the same display name,
// or creates one. Exactly one log entry is written per call.
func (s *SyncServiceImpl) SyncContactToCustomer(ctx context.Context, tenantID, contactID string) (result Result) {
	entry := &SyncLogEntry{
		TenantID:   tenantID,
		EntityType: EntityContact,
		EntityID:   contactID,
		Action:     ActionCreate,
		Direction:  DirectionToQB,
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("Contact sync panicked", zap.String("tenant_id", tenantID), zap.Any("panic", r))
			result = failure(entry.Action, CodeSyncError, fmt.Sprintf("unexpected error: %v", r))
		}
		s.record(ctx, entry, result, start)
	}()

	return s.syncContact(ctx, tenantID, contactID, entry)
}

func (s *SyncServiceImpl) syncContact(ctx context.Context, tenantID, contactID string, entry *SyncLogEntry) Result {
	contact, err := s.Contacts.GetContact(ctx, tenantID, contactID)
	if errors.Is(err, crm.ErrNotFound) {
		return failure(ActionCreate, CodeContactNotFound, "Contact not found")
	}
	if err != nil {
		return failure(ActionCreate, CodeSyncError, err.Error())
	}

	client, err := s.Clients.GetClient(ctx, tenantID)
	if err != nil {
		return clientFailure(ActionCreate, err)
	}

	payload := customerFromContact(contact)
	entry.RequestPayload = snapshot(payload)

	mapping, err := s.MappingRepo.Get(ctx, tenantID, EntityContact, contactID)
	if err != nil {
		return failure(ActionCreate, CodeSyncError, err.Error())
	}

	var (
		customer *qbclient.Customer
		action   Action
	)
	switch {
	case mapping != nil:
		action = ActionUpdate
		entry.Action = action
		existing, err := client.GetCustomer(ctx, mapping.QBEntityID)
		if err != nil {
			return failure(action, CodeQBAPIError, err.Error())
		}
		payload.ID = existing.ID
		payload.SyncToken = existing.SyncToken
		customer, err = client.UpdateCustomer(ctx, payload)
		if err != nil {
			return failure(action, CodeQBAPIError, err.Error())
		}

	default:
		found, err := client.FindCustomerByDisplayName(ctx, payload.DisplayName)
		if err != nil {
			return failure(ActionCreate, CodeQBAPIError, err.Error())
		}
		if found != nil {
			action = ActionLink
			customer = found
			break
		}
		action = ActionCreate
		customer, err = client.CreateCustomer(ctx, payload)
		if err != nil {
			return failure(action, CodeQBAPIError, err.Error())
		}
	}

	entry.Action = action
	entry.ResponsePayload = snapshot(customer)

	if err := s.MappingRepo.Upsert(ctx, &EntityMapping{
		TenantID:      tenantID,
		CRMEntityType: EntityContact,
		CRMEntityID:   contactID,
		QBEntityType:  QBEntityCustomer,
		QBEntityID:    customer.ID,
		QBSyncToken:   customer.SyncToken,
		LastSyncedAt:  time.Now().UTC(),
		SyncStatus:    MappingSynced,
	}); err != nil {
		res := failure(action, CodeSyncError, fmt.Sprintf("save mapping: %v", err))
		res.ExternalID = customer.ID
		return res
	}

	return Result{Success: true, ExternalID: customer.ID, Action: action}
}

// SyncProjectToInvoice issues a single line invoice for the project, syncing
// its contact first when the contact has no customer yet.
func (s *SyncServiceImpl) SyncProjectToInvoice(ctx context.Context, tenantID, projectID string) (result Result) {
	entry := &SyncLogEntry{
		TenantID:   tenantID,
		EntityType: EntityProject,
		EntityID:   projectID,
		Action:     ActionCreate,
		Direction:  DirectionToQB,
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("Project sync panicked", zap.String("tenant_id", tenantID), zap.Any("panic", r))
			result = failure(entry.Action, CodeSyncError, fmt.Sprintf("unexpected error: %v", r))
		}
		s.record(ctx, entry, result, start)
	}()

	return s.syncProject(ctx, tenantID, projectID, entry)
}

func (s *SyncServiceImpl) syncProject(ctx context.Context, tenantID, projectID string, entry *SyncLogEntry) Result {
	project, err := s.Projects.GetProject(ctx, tenantID, projectID)
	if errors.Is(err, crm.ErrNotFound) {
		return failure(ActionCreate, CodeProjectNotFound, "Project not found")
	}
	if err != nil {
		return failure(ActionCreate, CodeSyncError, err.Error())
	}
	if project.ContactID == "" {
		return failure(ActionCreate, CodeMissingContact, "Project has no contact")
	}

	client, err := s.Clients.GetClient(ctx, tenantID)
	if err != nil {
		return clientFailure(ActionCreate, err)
	}

	invoiceMapping, err := s.MappingRepo.Get(ctx, tenantID, EntityProject, projectID)
	if err != nil {
		return failure(ActionCreate, CodeSyncError, err.Error())
	}
	if invoiceMapping != nil && s.InvoiceResync != InvoiceResyncCreate {
		entry.Action = ActionSkip
		return Result{Success: true, ExternalID: invoiceMapping.QBEntityID, Action: ActionSkip}
	}

	customerMapping, err := s.MappingRepo.Get(ctx, tenantID, EntityContact, project.ContactID)
	if err != nil {
		return failure(ActionCreate, CodeSyncError, err.Error())
	}

	var customerID string
	if customerMapping != nil {
		customerID = customerMapping.QBEntityID
	} else {
		nested := s.SyncContactToCustomer(ctx, tenantID, project.ContactID)
		if !nested.Success {
			return failure(ActionCreate, CodeContactSyncFailed, "Contact sync failed: "+nested.Error)
		}
		customerID = nested.ExternalID
	}

	item := s.resolveDefaultItem(ctx, tenantID, client)
	invoice := invoiceFromProject(project, customerID, item)
	entry.RequestPayload = snapshot(invoice)

	created, err := client.CreateInvoice(ctx, invoice)
	if err != nil {
		return failure(ActionCreate, CodeQBAPIError, err.Error())
	}
	entry.ResponsePayload = snapshot(created)

	if err := s.MappingRepo.Upsert(ctx, &EntityMapping{
		TenantID:      tenantID,
		CRMEntityType: EntityProject,
		CRMEntityID:   projectID,
		QBEntityType:  QBEntityInvoice,
		QBEntityID:    created.ID,
		QBSyncToken:   created.SyncToken,
		LastSyncedAt:  time.Now().UTC(),
		SyncStatus:    MappingSynced,
	}); err != nil {
		res := failure(ActionCreate, CodeSyncError, fmt.Sprintf("save mapping: %v", err))
		res.ExternalID = created.ID
		return res
	}

	return Result{Success: true, ExternalID: created.ID, Action: ActionCreate}
}

// resolveDefaultItem prefers the cached item, then the first active service
// item in the company (cached for next time), then PlaceholderItem.
func (s *SyncServiceImpl) resolveDefaultItem(ctx context.Context, tenantID string, client *qbclient.Client) qbclient.Ref {
	if cached, err := s.Clients.DefaultItem(ctx, tenantID); err == nil && cached != nil && cached.Value != "" {
		return *cached
	}

	items, err := client.GetItems(ctx, qbclient.ItemFilter{ActiveOnly: true, Type: qbclient.ItemTypeService, MaxResults: 1})
	if err != nil || len(items) == 0 {
		if err != nil {
			s.Logger.Warn("Default item lookup failed", zap.String("tenant_id", tenantID), zap.Error(err))
		}
		return PlaceholderItem
	}

	item := qbclient.Ref{Value: items[0].ID, Name: items[0].Name}
	if err := s.Clients.SetDefaultItem(ctx, tenantID, item); err != nil {
		s.Logger.Warn("Failed to cache default item", zap.String("tenant_id", tenantID), zap.Error(err))
	}
	return item
}

// BulkSyncContacts syncs every non-deleted contact one at a time. A failing
// contact is counted and the batch carries on.
func (s *SyncServiceImpl) BulkSyncContacts(ctx context.Context, tenantID string) (*BulkResult, error) {
	contacts, err := s.Contacts.ListContacts(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}

	out := &BulkResult{Total: len(contacts)}
	for _, contact := range contacts {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		res := s.SyncContactToCustomer(ctx, tenantID, contact.ID)
		if res.Success {
			out.Synced++
			continue
		}
		out.Failed++
		out.Errors = append(out.Errors, BulkError{
			ContactID: contact.ID,
			Error:     res.Error,
			ErrorCode: res.ErrorCode,
		})
	}

	s.Logger.Info("Bulk contact sync finished",
		zap.String("tenant_id", tenantID),
		zap.Int("total", out.Total),
		zap.Int("synced", out.Synced),
		zap.Int("failed", out.Failed),
	)
	return out, nil
}

func (s *SyncServiceImpl) ListLogs(ctx context.Context, tenantID string, filter LogFilter) ([]SyncLogEntry, error) {
	return s.LogRepo.List(ctx, tenantID, filter)
}

func (s *SyncServiceImpl) ListMappings(ctx context.Context, tenantID, crmEntityType string, limit int) ([]EntityMapping, error) {
	return s.MappingRepo.List(ctx, tenantID, crmEntityType, limit)
}

// record writes the single log entry for a sync call.
func (s *SyncServiceImpl) record(ctx context.Context, entry *SyncLogEntry, result Result, start time.Time) {
	if result.Action != "" {
		entry.Action = result.Action
	}
	entry.QBEntityID = result.ExternalID
	entry.Status = LogSuccess
	if !result.Success {
		entry.Status = LogError
		entry.ErrorMessage = result.Error
		entry.ErrorCode = result.ErrorCode
	}

	// The log row is written even when the caller gave up.
	if err := s.LogRepo.Create(context.WithoutCancel(ctx), entry); err != nil {
		s.Logger.Error("Failed to write sync log",
			zap.String("tenant_id", entry.TenantID),
			zap.String("entity_type", entry.EntityType),
			zap.String("entity_id", entry.EntityID),
			zap.Error(err),
		)
	}
	metrics.RecordSync(entry.EntityType, string(entry.Action), string(entry.Status), time.Since(start))

	if !result.Success {
		s.Logger.Warn("QuickBooks sync failed",
			zap.String("tenant_id", entry.TenantID),
			zap.String("entity_type", entry.EntityType),
			zap.String("entity_id", entry.EntityID),
			zap.String("error_code", result.ErrorCode),
			zap.String("error", result.Error),
		)
	}
}

func failure(action Action, code, message string) Result {
	return Result{Success: false, Action: action, Error: message, ErrorCode: code}
}

func clientFailure(action Action, err error) Result {
	if errors.Is(err, qbconnection.ErrNotConnected) {
		return failure(action, CodeNotConnected, err.Error())
	}
	return failure(action, CodeSyncError, err.Error())
}

func customerFromContact(c *crm.Contact) *qbclient.Customer {
	cust := &qbclient.Customer{
		DisplayName: c.DisplayName(),
		GivenName:   c.FirstName,
		FamilyName:  c.LastName,
		CompanyName: c.Company,
	}
	if c.Email != "" {
		cust.PrimaryEmailAddr = &qbclient.EmailAddress{Address: c.Email}
	}
	if c.Phone != "" {
		cust.PrimaryPhone = &qbclient.TelephoneNumber{FreeFormNumber: c.Phone}
	}
	if !c.Address.IsZero() {
		cust.BillAddr = &qbclient.PhysicalAddress{
			Line1:                  c.Address.Street,
			City:                   c.Address.City,
			CountrySubDivisionCode: c.Address.State,
			PostalCode:             c.Address.Zip,
		}
	}
	return cust
}

func invoiceFromProject(p *crm.Project, customerID string, item qbclient.Ref) *qbclient.Invoice {
	amount := p.Amount()
	description := p.Name
	if p.Description != "" {
		description = p.Name + " - " + p.Description
	}
	return &qbclient.Invoice{
		CustomerRef: qbclient.Ref{Value: customerID},
		Line: []qbclient.Line{{
			Amount:      amount,
			Description: description,
			DetailType:  qbclient.LineSalesItem,
			SalesItemLineDetail: &qbclient.SalesItemLineDetail{
				ItemRef:   item,
				Qty:       1,
				UnitPrice: amount,
			},
		}},
		PrivateNote: "CRM project " + p.ID,
	}
}

func snapshot(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
