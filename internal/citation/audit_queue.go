package citation

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/interfaces"
	"github.com/docuflow/docuflow/internal/models"
)

// Queue implements interfaces.AuditQueue over Store's priority-ordered
// dequeue query and verification write path.
type Queue struct {
	store  interfaces.Store
	logger arbor.ILogger
}

// NewQueue constructs a Queue.
func NewQueue(store interfaces.Store, logger arbor.ILogger) *Queue {
	return &Queue{store: store, logger: logger}
}

var _ interfaces.AuditQueue = (*Queue)(nil)

// List returns one page of the review queue, ordered by (priority asc,
// confidence asc, created_at desc) as Store.ListAuditQueue implements it.
func (q *Queue) List(ctx context.Context, filter interfaces.AuditFilter, page, size int) ([]models.FieldWithContext, int, map[models.AuditPriority]int, error) {
	return q.store.ListAuditQueue(ctx, filter, page, size)
}

// Verify records a reviewer's verdict on a field and returns the updated
// field alongside its document/template context for the caller's next
// queue render.
func (q *Queue) Verify(ctx context.Context, fieldID string, action models.VerificationAction, correctedValue *string, notes, reviewerID string) (*models.ExtractedField, *models.FieldWithContext, error) {
	field, err := q.store.AppendVerification(ctx, fieldID, action, correctedValue, notes, reviewerID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to record verification for field %s: %w", fieldID, err)
	}

	withCtx, err := q.fieldWithContext(ctx, field)
	if err != nil {
		q.logger.Warn().Err(err).Str("field_id", fieldID).Msg("verification recorded but failed to load document/template context")
		return field, nil, nil
	}
	return field, withCtx, nil
}

func (q *Queue) fieldWithContext(ctx context.Context, field *models.ExtractedField) (*models.FieldWithContext, error) {
	doc, err := q.store.GetDocument(ctx, field.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", field.DocumentID, err)
	}

	templateName := ""
	if doc.TemplateID != nil {
		tmpl, err := q.store.GetTemplate(ctx, *doc.TemplateID)
		if err != nil {
			return nil, fmt.Errorf("failed to load template for document %s: %w", doc.ID, err)
		}
		templateName = tmpl.Name
	}

	return &models.FieldWithContext{
		Field:        *field,
		DocumentName: doc.Filename,
		TemplateName: templateName,
	}, nil
}
