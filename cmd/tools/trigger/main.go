package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/david/campsite-finder/internal/auth"
)

// Starts a catalog rebuild on a running server and waits for the job.
func main() {
	base := flag.String("url", "http://localhost:8080", "Server base URL")
	wait := flag.Bool("wait", true, "Poll the job until it finishes")
	flag.Parse()

	secret := strings.TrimSpace(os.Getenv("CAMPSITE_ADMIN_SECRET"))
	if secret == "" {
		fmt.Println("Missing CAMPSITE_ADMIN_SECRET environment variable")
		os.Exit(1)
	}
	svc, err := auth.NewService(secret)
	if err != nil {
		fmt.Printf("Auth setup failed: %v\n", err)
		os.Exit(1)
	}
	token, err := svc.IssueAdminToken("trigger", 10*time.Minute)
	if err != nil {
		fmt.Printf("Token signing failed: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	var started struct {
		JobID string `json:"jobId"`
		Error string `json:"error"`
	}
	status, err := call(client, http.MethodPost, *base+"/api/admin/catalog/rebuild", token, &started)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Response Status: %d %s\n", status, started.Error)
	if status != http.StatusAccepted {
		os.Exit(1)
	}
	fmt.Printf("Job %s started\n", started.JobID)
	if !*wait {
		return
	}

	for {
		time.Sleep(5 * time.Second)
		var job map[string]any
		if _, err := call(client, http.MethodGet, *base+"/api/admin/job/"+started.JobID, token, &job); err != nil {
			fmt.Printf("Error polling job: %v\n", err)
			os.Exit(1)
		}
		switch job["status"] {
		case "running":
			continue
		case "completed":
			fmt.Printf("Completed in %v: %v\n", job["duration"], job["result"])
			return
		default:
			fmt.Printf("Job %v: %v\n", job["status"], job["error"])
			os.Exit(1)
		}
	}
}

func call(client *http.Client, method, url, token string, out any) (int, error) {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
}
