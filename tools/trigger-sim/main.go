// Command trigger-sim posts a store trigger to a running webhook-service.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

func main() {
	var (
		baseURL    = flag.String("base-url", getenv("BASE_URL", "http://localhost:8086"), "webhook-service base url")
		storeID    = flag.String("store-id", getenv("STORE_ID", ""), "store id sent as X-Store-ID")
		resource   = flag.String("resource", getenv("TRIGGER_RESOURCE", "orders"), "trigger resource (orders, carts, ...)")
		action     = flag.String("action", getenv("TRIGGER_ACTION", "change"), "trigger action (create, change, delete)")
		resourceID = flag.String("resource-id", getenv("RESOURCE_ID", ""), "id of the changed document")
		insertedID = flag.String("inserted-id", getenv("INSERTED_ID", ""), "id of a created document, used when resource-id is empty")
	)
	flag.Parse()

	if strings.TrimSpace(*storeID) == "" {
		fatal("STORE_ID is required")
	}
	if strings.TrimSpace(*resourceID) == "" && strings.TrimSpace(*insertedID) == "" {
		fatal("RESOURCE_ID or INSERTED_ID is required")
	}

	payload, err := buildTriggerJSON(time.Now().UTC(), *resource, *action, *resourceID, *insertedID)
	if err != nil {
		fatal(err.Error())
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/webhook", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Store-ID", strings.TrimSpace(*storeID))
	req.Header.Set("X-Request-Id", uuid.NewString())

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	fmt.Printf("status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
}

func buildTriggerJSON(t time.Time, resource, action, resourceID, insertedID string) ([]byte, error) {
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return nil, fmt.Errorf("resource is required")
	}
	trigger := map[string]any{
		"resource": resource,
		"action":   strings.TrimSpace(action),
		"datetime": t.Format(time.RFC3339),
	}
	if id := strings.TrimSpace(resourceID); id != "" {
		trigger["resource_id"] = id
	}
	if id := strings.TrimSpace(insertedID); id != "" {
		trigger["inserted_id"] = id
	}
	return json.Marshal(trigger)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
