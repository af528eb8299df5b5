package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
)

func TestParseDocumentType(t *testing.T) {
	dt, err := ParseDocumentType("  invoice ")
	require.NoError(t, err)
	assert.Equal(t, DocumentType("INVOICE"), dt)

	_, err = ParseDocumentType("   ")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestFileKey_DropsDirectories(t *testing.T) {
	claimID, docID := id.NewClaimID(), id.NewDocumentID()
	key := FileKey(claimID, docID, "../../etc/passwd")
	assert.Equal(t, "claims/"+claimID.String()+"/"+docID.String()+"/passwd", key)
}

func TestFlagsReportChange(t *testing.T) {
	d := &Document{}
	assert.True(t, d.Verify())
	assert.False(t, d.Verify())

	n := &Notification{}
	assert.True(t, n.MarkRead())
	assert.False(t, n.MarkRead())
}
