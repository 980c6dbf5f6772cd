package integration

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/kikaiken/kikaiken/pkg/api"
	"github.com/kikaiken/kikaiken/pkg/provider/providertest"
	"github.com/kikaiken/kikaiken/pkg/text"
)

func TestStoredKeyOverridesConfig(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/v1/apikeys", api.APIKeyRequest{
		ProviderType: "deepseek",
		ModelName:    providertest.DefaultModel,
		Key:          "sk-stored",
		Notice:       "club account",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add status = %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var key api.APIKey
	decodeJSON(t, resp, &key)
	if key.Key != "" {
		t.Error("add must not echo the secret")
	}

	readBody(t, postJSON(t, testEnv.BaseURL()+"/v1/talk", api.TalkRequest{UID: "40001", Content: "Hello"}))
	if got := lastBackendRequest(t).Authorization; got != "Bearer sk-stored" {
		t.Errorf("Authorization with stored key = %q", got)
	}

	resp = deleteURL(t, fmt.Sprintf("%s/v1/apikeys/%d", testEnv.BaseURL(), key.ID))
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	readBody(t, postJSON(t, testEnv.BaseURL()+"/v1/talk", api.TalkRequest{UID: "40001", Content: "Hello"}))
	if got := lastBackendRequest(t).Authorization; got != "Bearer "+configKey {
		t.Errorf("Authorization after delete = %q", got)
	}
}

func TestAPIKeyListing(t *testing.T) {
	var ids []int64
	for i := 0; i < 2; i++ {
		resp := postJSON(t, testEnv.BaseURL()+"/v1/apikeys", api.APIKeyRequest{
			ProviderType: "siliconflow",
			ModelName:    fmt.Sprintf("Qwen/Qwen-%d", i),
			Key:          fmt.Sprintf("sk-list-%d", i),
		})
		var key api.APIKey
		decodeJSON(t, resp, &key)
		ids = append(ids, key.ID)
	}
	t.Cleanup(func() {
		for _, id := range ids {
			deleteURL(t, fmt.Sprintf("%s/v1/apikeys/%d", testEnv.BaseURL(), id)).Body.Close()
		}
	})

	var hidden api.APIKeyList
	decodeJSON(t, getURL(t, testEnv.BaseURL()+"/v1/apikeys"), &hidden)
	if hidden.Total < 2 {
		t.Fatalf("total = %d", hidden.Total)
	}
	for _, k := range hidden.Data {
		if k.Key != "" {
			t.Errorf("key %d leaked its secret", k.ID)
		}
	}
	if strings.Contains(hidden.Text, "sk-list-0") {
		t.Error("listing text leaked a secret")
	}

	var shown api.APIKeyList
	decodeJSON(t, getURL(t, testEnv.BaseURL()+"/v1/apikeys?show=true"), &shown)
	if !strings.Contains(shown.Text, "sk-list-0") {
		t.Errorf("show text = %q", shown.Text)
	}

	resp := postJSON(t, testEnv.BaseURL()+"/v1/apikeys", api.APIKeyRequest{
		ProviderType: "siliconflow",
		ModelName:    "Qwen/Qwen-0",
		Key:          "sk-list-0",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAPIKeyErrors(t *testing.T) {
	resp := deleteURL(t, testEnv.BaseURL()+"/v1/apikeys/999999")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown id status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, testEnv.BaseURL()+"/v1/apikeys", api.APIKeyRequest{ProviderType: "openai", Key: "sk"})
	if apiErr := decodeError(t, resp); apiErr.Param != "provider_type" {
		t.Errorf("error = %+v", apiErr)
	}
}

func TestCommands(t *testing.T) {
	run := func(line string) string {
		var out api.CommandResponse
		decodeJSON(t, postJSON(t, testEnv.BaseURL()+"/v1/commands", api.CommandRequest{Command: line}), &out)
		return out.Text
	}

	if reply := run("apikey add deepseek deepseek-reasoner sk-cmd from the command line"); !strings.Contains(reply, "deepseek-reasoner") {
		t.Fatalf("add answered %q", reply)
	}
	listing := run("apikey list -s")
	if !strings.Contains(listing, "sk-cmd") || !strings.Contains(listing, "from the command line") {
		t.Errorf("listing = %q", listing)
	}

	var list api.APIKeyList
	decodeJSON(t, getURL(t, testEnv.BaseURL()+"/v1/apikeys?show=true"), &list)
	var id int64
	for _, k := range list.Data {
		if k.Key == "sk-cmd" {
			id = k.ID
		}
	}
	if id == 0 {
		t.Fatalf("command-added key missing from %+v", list.Data)
	}

	run(fmt.Sprintf("apikey del %d", id))
	if listing := run("apikey list -s"); strings.Contains(listing, "sk-cmd") {
		t.Errorf("key still listed after del: %q", listing)
	}

	if got := run("launch rockets"); got != text.UnknownCommand() {
		t.Errorf("unknown command answered %q", got)
	}
}
