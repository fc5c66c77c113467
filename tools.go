//go:build tools

package tools

// mockery is used as an installed binary, so no blank import is needed.
// Regenerate pkg/discovery/mocks with:
//
//	mockery --name Advertiser --dir pkg/discovery --output pkg/discovery/mocks --with-expecter
