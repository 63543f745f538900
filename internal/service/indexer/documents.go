package indexer

import (
	"time"

	"github.com/darioristic/crmflow/internal/domain"
	"github.com/darioristic/crmflow/internal/search"
)

// Индексные uid read-моделей.
const (
	IndexOffers     = "offers"
	IndexOrders     = "orders"
	IndexDeliveries = "deliveries"
	IndexInvoices   = "invoices"
)

// NewOfferIndexer строит индексатор офферов.
func NewOfferIndexer(engine search.Engine, offers domain.OfferRepository, options ...Option) *Indexer {
	return New(engine, Config{
		IndexUID: IndexOffers,
		Pattern:  "offer.*",
		Settings: search.IndexSettings{
			PrimaryKey:           "id",
			SearchableAttributes: []string{"number", "companyName", "contactName", "notes"},
			FilterableAttributes: []string{"status", "companyId", "currency"},
			SortableAttributes:   []string{"createdAt", "updatedAt", "totalMinor", "validUntil"},
		},
		DefaultSort: []string{"createdAt:desc"},
		LoadDocument: func(aggregateID string) (search.Document, error) {
			offer, err := offers.Get(aggregateID)
			if err != nil {
				return nil, err
			}
			return offerDocument(offer), nil
		},
		ListDocuments: func() ([]search.Document, error) {
			all, err := offers.List(0)
			if err != nil {
				return nil, err
			}
			docs := make([]search.Document, 0, len(all))
			for _, offer := range all {
				docs = append(docs, offerDocument(offer))
			}
			return docs, nil
		},
		NotFoundErr: domain.ErrOfferNotFound,
	}, options...)
}

// NewOrderIndexer строит индексатор заказов.
func NewOrderIndexer(engine search.Engine, orders domain.OrderRepository, options ...Option) *Indexer {
	return New(engine, Config{
		IndexUID: IndexOrders,
		Pattern:  "order.*",
		Settings: search.IndexSettings{
			PrimaryKey:           "id",
			SearchableAttributes: []string{"number", "companyName", "notes"},
			FilterableAttributes: []string{"status", "companyId", "currency", "offerId"},
			SortableAttributes:   []string{"createdAt", "updatedAt", "totalMinor"},
		},
		DefaultSort: []string{"createdAt:desc"},
		LoadDocument: func(aggregateID string) (search.Document, error) {
			order, err := orders.Get(aggregateID)
			if err != nil {
				return nil, err
			}
			return orderDocument(order), nil
		},
		ListDocuments: func() ([]search.Document, error) {
			all, err := orders.List(0)
			if err != nil {
				return nil, err
			}
			docs := make([]search.Document, 0, len(all))
			for _, order := range all {
				docs = append(docs, orderDocument(order))
			}
			return docs, nil
		},
		NotFoundErr: domain.ErrOrderNotFound,
	}, options...)
}

// NewDeliveryIndexer строит индексатор поставок.
func NewDeliveryIndexer(engine search.Engine, deliveries domain.DeliveryRepository, options ...Option) *Indexer {
	return New(engine, Config{
		IndexUID: IndexDeliveries,
		Pattern:  "delivery.*",
		Settings: search.IndexSettings{
			PrimaryKey:           "id",
			SearchableAttributes: []string{"number", "companyName", "notes"},
			FilterableAttributes: []string{"status", "companyId", "orderId"},
			SortableAttributes:   []string{"createdAt", "updatedAt", "deliveryDate", "signedAt"},
		},
		DefaultSort: []string{"createdAt:desc"},
		LoadDocument: func(aggregateID string) (search.Document, error) {
			delivery, err := deliveries.Get(aggregateID)
			if err != nil {
				return nil, err
			}
			return deliveryDocument(delivery), nil
		},
		ListDocuments: func() ([]search.Document, error) {
			all, err := deliveries.List(0)
			if err != nil {
				return nil, err
			}
			docs := make([]search.Document, 0, len(all))
			for _, delivery := range all {
				docs = append(docs, deliveryDocument(delivery))
			}
			return docs, nil
		},
		NotFoundErr: domain.ErrDeliveryNotFound,
	}, options...)
}

// NewInvoiceIndexer строит индексатор счетов.
func NewInvoiceIndexer(engine search.Engine, invoices domain.InvoiceRepository, options ...Option) *Indexer {
	return New(engine, Config{
		IndexUID: IndexInvoices,
		Pattern:  "invoice.*",
		Settings: search.IndexSettings{
			PrimaryKey:           "id",
			SearchableAttributes: []string{"number", "companyName", "notes"},
			FilterableAttributes: []string{"status", "companyId", "currency", "deliveryId"},
			SortableAttributes:   []string{"createdAt", "updatedAt", "totalMinor", "dueDate"},
		},
		DefaultSort: []string{"createdAt:desc"},
		LoadDocument: func(aggregateID string) (search.Document, error) {
			invoice, err := invoices.Get(aggregateID)
			if err != nil {
				return nil, err
			}
			return invoiceDocument(invoice), nil
		},
		ListDocuments: func() ([]search.Document, error) {
			all, err := invoices.List(0)
			if err != nil {
				return nil, err
			}
			docs := make([]search.Document, 0, len(all))
			for _, invoice := range all {
				docs = append(docs, invoiceDocument(invoice))
			}
			return docs, nil
		},
		NotFoundErr: domain.ErrInvoiceNotFound,
	}, options...)
}

// Документы плоские: вложенных объектов нет, контрагент денормализован,
// даты в epoch millis.

func offerDocument(offer domain.Offer) search.Document {
	return search.Document{
		"id":           offer.ID,
		"number":       offer.Number,
		"companyId":    offer.CompanyID,
		"companyName":  offer.CompanyName,
		"companyEmail": offer.CompanyEmail,
		"contactName":  offer.ContactName,
		"status":       string(offer.Status),
		"currency":     offer.Currency,
		"totalMinor":   offer.TotalMinor,
		"notes":        offer.Notes,
		"validUntil":   epochMillis(offer.ValidUntil),
		"createdAt":    epochMillis(offer.CreatedAt),
		"updatedAt":    epochMillis(offer.UpdatedAt),
	}
}

func orderDocument(order domain.Order) search.Document {
	return search.Document{
		"id":           order.ID,
		"number":       order.Number,
		"offerId":      order.OfferID,
		"companyId":    order.CompanyID,
		"companyName":  order.CompanyName,
		"companyEmail": order.CompanyEmail,
		"status":       string(order.Status),
		"currency":     order.Currency,
		"totalMinor":   order.TotalMinor,
		"notes":        order.Notes,
		"createdAt":    epochMillis(order.CreatedAt),
		"updatedAt":    epochMillis(order.UpdatedAt),
	}
}

func deliveryDocument(delivery domain.Delivery) search.Document {
	return search.Document{
		"id":           delivery.ID,
		"number":       delivery.Number,
		"orderId":      delivery.OrderID,
		"companyId":    delivery.CompanyID,
		"companyName":  delivery.CompanyName,
		"companyEmail": delivery.CompanyEmail,
		"status":       string(delivery.Status),
		"deliveryDate": epochMillis(delivery.DeliveryDate),
		"signedAt":     epochMillis(delivery.SignedAt),
		"notes":        delivery.Notes,
		"createdAt":    epochMillis(delivery.CreatedAt),
		"updatedAt":    epochMillis(delivery.UpdatedAt),
	}
}

func invoiceDocument(invoice domain.Invoice) search.Document {
	return search.Document{
		"id":           invoice.ID,
		"number":       invoice.Number,
		"deliveryId":   invoice.DeliveryID,
		"companyId":    invoice.CompanyID,
		"companyName":  invoice.CompanyName,
		"companyEmail": invoice.CompanyEmail,
		"status":       string(invoice.Status),
		"currency":     invoice.Currency,
		"totalMinor":   invoice.TotalMinor,
		"dueDate":      epochMillis(invoice.DueDate),
		"notes":        invoice.Notes,
		"createdAt":    epochMillis(invoice.CreatedAt),
		"updatedAt":    epochMillis(invoice.UpdatedAt),
	}
}

func epochMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
