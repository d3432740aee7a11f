package records

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pdfutil "github.com/dharsanguruparan/efolder-express/internal/pdf"
)

func TestDemoClient(t *testing.T) {
	ctx := context.Background()
	var client Client = DemoClient{}

	docs, err := client.ListDocuments(ctx, "123456789")
	require.NoError(t, err)
	require.Len(t, docs, 4)

	data, err := client.FetchDocumentContents(ctx, docs[0].DocumentID)
	require.NoError(t, err)
	n, err := pdfutil.PageCount(data)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	_, err = client.FetchDocumentContents(ctx, docs[3].DocumentID)
	var te *TransportError
	assert.True(t, errors.As(err, &te))

	_, err = client.ListDocuments(ctx, DemoFailingFileNumber)
	assert.True(t, errors.As(err, &te))

	types, err := client.GetDocumentTypes(ctx)
	require.NoError(t, err)
	assert.Contains(t, types, 356)
}
