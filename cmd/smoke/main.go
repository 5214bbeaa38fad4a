package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"time"
)

// Smoke client: exercises the record CRUD surface of a running API over
// HTTP and verifies the round trip, so a deploy can be sanity-checked
// without poking curl by hand.
func main() {
	base := os.Getenv("RECORDBASE_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	tenant := os.Getenv("RECORDBASE_API_KEY")
	if tenant == "" {
		tenant = fmt.Sprintf("smoke-%d", rand.Int())
	}

	c := &client{base: base, tenant: tenant, http: &http.Client{Timeout: 5 * time.Second}}
	category := "smoke"
	marker := fmt.Sprintf("run-%d", time.Now().UnixNano())

	var created map[string]any
	c.call(http.MethodPost, "/v1/records/"+category, map[string]any{"marker": marker, "n": 1}, http.StatusCreated, &created)
	id, ok := created["id"].(float64)
	if !ok || id <= 0 {
		log.Fatalf("create returned no id: %v", created)
	}
	path := fmt.Sprintf("/v1/records/%s/%d", category, int64(id))

	var got map[string]any
	c.call(http.MethodGet, path, nil, http.StatusOK, &got)
	if got["marker"] != marker {
		log.Fatalf("read back wrong document: %v", got)
	}

	var updated map[string]any
	c.call(http.MethodPut, path, map[string]any{"n": 2}, http.StatusOK, &updated)
	if updated["n"].(float64) != 2 || updated["marker"] != marker {
		log.Fatalf("update lost data: %v", updated)
	}

	var listed struct {
		TotalRecords int64 `json:"totalRecords"`
	}
	c.call(http.MethodGet, "/v1/records/"+category+"?"+url.Values{
		"filterKey":   {"marker"},
		"filterValue": {marker},
	}.Encode(), nil, http.StatusOK, &listed)
	if listed.TotalRecords != 1 {
		log.Fatalf("list found %d records for marker %s", listed.TotalRecords, marker)
	}

	var deleted map[string]any
	c.call(http.MethodDelete, path, nil, http.StatusOK, &deleted)
	if deleted["deletedCount"].(float64) != 1 {
		log.Fatalf("unexpected delete result: %v", deleted)
	}
	c.call(http.MethodGet, path, nil, http.StatusNotFound, nil)

	fmt.Printf("✅ api smoke test passed: %s record id=%d\n", base, int64(id))
}

type client struct {
	base   string
	tenant string
	http   *http.Client
}

func (c *client) call(method, path string, body any, wantStatus int, out any) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			log.Fatalf("%s %s: marshal: %v", method, path, err)
		}
	}
	req, err := http.NewRequest(method, c.base+path, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	req.Header.Set("api_key", c.tenant)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		log.Fatalf("%s %s: status %d, want %d", method, path, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
}
