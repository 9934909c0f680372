package common

import (
	"github.com/google/uuid"
)

// NewDocumentID generates a unique document id. Format: doc_<uuid>
func NewDocumentID() string {
	return "doc_" + uuid.New().String()
}

// NewPhysicalFileID generates a unique id for a PhysicalFile row.
func NewPhysicalFileID() string {
	return "file_" + uuid.New().String()
}

// NewTemplateID generates a unique template id.
func NewTemplateID() string {
	return "tpl_" + uuid.New().String()
}

// NewFieldID generates a unique id for an ExtractedField row.
func NewFieldID() string {
	return "fld_" + uuid.New().String()
}

// NewCitationID generates a unique id for a Citation row.
func NewCitationID() string {
	return "cit_" + uuid.New().String()
}

// NewVerificationID generates a unique id for a Verification row.
func NewVerificationID() string {
	return "ver_" + uuid.New().String()
}

// NewQueryID generates a unique id for a single Ask() invocation.
func NewQueryID() string {
	return "qry_" + uuid.New().String()
}

// NewParseJobID generates an opaque parse job id handed out by the Parser client.
func NewParseJobID() string {
	return "job_" + uuid.New().String()
}
