// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateCreateRequestAcceptsWellFormedRequest(t *testing.T) {
	req := createProcessRequest{
		App:         "myapp",
		Node:        "web.0",
		ProcessType: "web",
		SourceURL:   "http://example.invalid/a.tar.gz",
	}
	assert.Empty(t, validateCreateRequest(&req))
}

func TestValidateCreateRequestRejectsBadCharset(t *testing.T) {
	req := createProcessRequest{
		App:         "my app",
		Node:        "web.0",
		ProcessType: "web",
		SourceURL:   "http://example.invalid/a.tar.gz",
	}
	assert.NotEmpty(t, validateCreateRequest(&req))
}

func TestValidateCreateRequestRejectsNonHTTPSourceURL(t *testing.T) {
	req := createProcessRequest{
		App:         "myapp",
		Node:        "web.0",
		ProcessType: "web",
		SourceURL:   "ftp://example.invalid/a.tar.gz",
	}
	assert.NotEmpty(t, validateCreateRequest(&req))
}

func TestValidateCreateRequestRejectsMissingProcessType(t *testing.T) {
	req := createProcessRequest{
		App:       "myapp",
		Node:      "web.0",
		SourceURL: "http://example.invalid/a.tar.gz",
	}
	assert.NotEmpty(t, validateCreateRequest(&req))
}
