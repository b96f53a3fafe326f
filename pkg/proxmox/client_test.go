package proxmox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/proxforge/proxforge/pkg/inventory"
)

// fakeAPI serves the slice of the Proxmox REST API the client touches.
type fakeAPI struct {
	mu        sync.Mutex
	isos      []string
	guests    []VMInfo
	downloads []string
	deletes   []string
	authSeen  string
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api2/json/nodes/pve1/storage/local/content", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.authSeen = r.Header.Get("Authorization")

		contents := []StorageContent{}
		for _, iso := range f.isos {
			contents = append(contents, StorageContent{Volid: "local:iso/" + iso, Format: "iso"})
		}
		writeData(w, contents)
	})

	mux.HandleFunc("/api2/json/nodes/pve1/storage/local/download-url", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		_ = r.ParseForm()
		name := r.Form.Get("filename")
		f.downloads = append(f.downloads, name)
		// The download "finishes" immediately: the next content listing
		// carries the image.
		f.isos = append(f.isos, name)
		writeData(w, "UPID:pve1:00001234:taskid:")
	})

	mux.HandleFunc("/api2/json/nodes/pve1/qemu", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeData(w, f.guests)
	})

	mux.HandleFunc("/api2/json/nodes/pve1/qemu/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.NotFound(w, r)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.deletes = append(f.deletes, r.URL.Path)
		writeData(w, nil)
	})

	return mux
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func setupClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()

	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)

	c := NewClient(inventory.ProxmoxConfig{
		Endpoint: server.URL,
		Node:     "pve1",
		TokenID:  "root@pam!forge",
		Secret:   "s3cret",
	})
	c.PollInterval = time.Millisecond
	c.PollAttempts = 5
	return c
}

func TestCheckISO(t *testing.T) {
	api := &fakeAPI{isos: []string{"debian-12.iso"}}
	c := setupClient(t, api)

	found, err := c.CheckISO(context.Background(), "local", "debian-12.iso")
	if err != nil {
		t.Fatalf("CheckISO: %v", err)
	}
	if !found {
		t.Error("existing iso reported missing")
	}

	found, err = c.CheckISO(context.Background(), "local", "ubuntu-24.iso")
	if err != nil {
		t.Fatalf("CheckISO: %v", err)
	}
	if found {
		t.Error("absent iso reported present")
	}

	if api.authSeen != "PVEAPIToken=root@pam!forge=s3cret" {
		t.Errorf("Authorization = %q", api.authSeen)
	}
}

func TestDownloadISOSkipsExisting(t *testing.T) {
	api := &fakeAPI{isos: []string{"debian-12.iso"}}
	c := setupClient(t, api)

	err := c.DownloadISO(context.Background(), "local", "debian-12.iso", "https://example.com/debian-12.iso")
	if err != nil {
		t.Fatalf("DownloadISO: %v", err)
	}
	if len(api.downloads) != 0 {
		t.Errorf("downloads = %v, want none for an existing iso", api.downloads)
	}
}

func TestDownloadISOStartsAndPolls(t *testing.T) {
	api := &fakeAPI{}
	c := setupClient(t, api)

	err := c.DownloadISO(context.Background(), "local", "debian-12.iso", "https://example.com/debian-12.iso")
	if err != nil {
		t.Fatalf("DownloadISO: %v", err)
	}
	if len(api.downloads) != 1 || api.downloads[0] != "debian-12.iso" {
		t.Errorf("downloads = %v", api.downloads)
	}
}

func TestTemplateInfo(t *testing.T) {
	api := &fakeAPI{guests: []VMInfo{
		{VMID: 300, Name: "debian-base", Status: "stopped", Template: true},
	}}
	c := setupClient(t, api)

	info, found, err := c.TemplateInfo(context.Background(), 300)
	if err != nil {
		t.Fatalf("TemplateInfo: %v", err)
	}
	if !found || info.Name != "debian-base" || !bool(info.Template) {
		t.Errorf("info = %+v, found = %v", info, found)
	}

	_, found, err = c.TemplateInfo(context.Background(), 999)
	if err != nil {
		t.Fatalf("TemplateInfo: %v", err)
	}
	if found {
		t.Error("absent guest reported found")
	}
}

func TestDeleteTemplate(t *testing.T) {
	api := &fakeAPI{guests: []VMInfo{{VMID: 300, Name: "debian-base", Template: true}}}
	c := setupClient(t, api)

	if err := c.DeleteTemplate(context.Background(), 300); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}
	if len(api.deletes) != 1 || api.deletes[0] != "/api2/json/nodes/pve1/qemu/300" {
		t.Errorf("deletes = %v", api.deletes)
	}
}

func TestDeleteTemplateMissingGuest(t *testing.T) {
	api := &fakeAPI{}
	c := setupClient(t, api)

	// A guest that is already gone is not an error.
	if err := c.DeleteTemplate(context.Background(), 300); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}
	if len(api.deletes) != 0 {
		t.Errorf("deletes = %v, want none", api.deletes)
	}
}

func TestIntBool(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`1`, true},
		{`0`, false},
		{`true`, true},
		{`false`, false},
	}

	for _, tt := range tests {
		var b IntBool
		if err := json.Unmarshal([]byte(tt.raw), &b); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.raw, err)
		}
		if bool(b) != tt.want {
			t.Errorf("IntBool(%s) = %v, want %v", tt.raw, b, tt.want)
		}
	}

	var b IntBool
	if err := json.Unmarshal([]byte(`"yes"`), &b); err == nil {
		t.Error("string accepted as IntBool")
	}
}

func TestGetHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "authentication failure", http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	c := NewClient(inventory.ProxmoxConfig{Endpoint: server.URL, Node: "pve1"})
	_, err := c.CheckISO(context.Background(), "local", "any.iso")
	if err == nil {
		t.Fatal("HTTP 401 not surfaced")
	}
	if want := fmt.Sprintf("HTTP %d", http.StatusUnauthorized); !strings.Contains(err.Error(), want) {
		t.Errorf("error = %v, want mention of %s", err, want)
	}
}
