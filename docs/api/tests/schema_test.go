package tests

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/aegis-sign/connect/pkg/apierrors"
	"gopkg.in/yaml.v3"
)

func loadOpenAPI(t *testing.T) map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "openapi.yaml"))
	if err != nil {
		t.Fatalf("read openapi: %v", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return doc
}

func TestErrorCodesDocumented(t *testing.T) {
	doc := loadOpenAPI(t)
	schemas := doc["components"].(map[string]any)["schemas"].(map[string]any)
	enum := schemas["ErrorCode"].(map[string]any)["enum"].([]any)
	documented := make(map[string]bool, len(enum))
	for _, v := range enum {
		documented[v.(string)] = true
	}
	for _, code := range []apierrors.Code{
		apierrors.CodeInvalidIntent,
		apierrors.CodeDispatchFailed,
		apierrors.CodeCorrelationFailed,
		apierrors.CodeVerificationFailed,
		apierrors.CodeInvalidArgument,
		apierrors.CodeTopicNotFound,
	} {
		if !documented[string(code)] {
			t.Fatalf("ErrorCode enum missing %s", code)
		}
	}
}

func TestTopicMessageKinds(t *testing.T) {
	doc := loadOpenAPI(t)
	schemas := doc["components"].(map[string]any)["schemas"].(map[string]any)
	props := schemas["TopicMessage"].(map[string]any)["properties"].(map[string]any)
	for _, key := range []string{"access_token", "tx", "error"} {
		if _, ok := props[key]; !ok {
			t.Fatalf("TopicMessage must document %q", key)
		}
	}
}

func TestTopicErrorResponsesMatchStatusMap(t *testing.T) {
	doc := loadOpenAPI(t)
	topic := doc["paths"].(map[string]any)["/topic/{id}"].(map[string]any)
	cases := []struct {
		method string
		code   apierrors.Code
	}{
		{"post", apierrors.CodeInvalidArgument},
		{"delete", apierrors.CodeTopicNotFound},
	}
	for _, tc := range cases {
		responses := topic[tc.method].(map[string]any)["responses"].(map[string]any)
		status := apierrors.HTTPStatus(tc.code)
		if _, ok := responses[strconv.Itoa(status)]; !ok {
			t.Fatalf("%s /topic/{id} must document %d (%s)", tc.method, status, http.StatusText(status))
		}
	}
}
