package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/USSTM/microservice/internal/aws"
	"github.com/USSTM/microservice/internal/config"
	"github.com/USSTM/microservice/internal/container"
)

type LocalStackEmail struct {
	ID          string    `json:"Id"`
	Timestamp   string    `json:"Timestamp"`
	Subject     string    `json:"Subject"`
	Body        EmailBody `json:"Body"`
	Destination Dest      `json:"Destination"`
}
type EmailBody struct {
	Text string `json:"text_part"`
}
type Dest struct {
	ToAddresses []string `json:"ToAddresses"`
}
type LocalStackResponse struct {
	Messages []LocalStackEmail `json:"messages"`
}

var (
	testPtr = flag.Bool("test", false, "Send a test report through the configured reporter")
	viewPtr = flag.Bool("view", false, "View reports mailed to the LocalStack SES inbox")
	listPtr = flag.Bool("list", false, "List reports archived in the S3 bucket")
	getPtr  = flag.String("get", "", "Print the archived report with this key")
)

func main() {
	flag.Parse()

	cfg := config.Load(config.New())
	ctx := context.Background()

	// this is for make report-test (checks the reporter wiring end to end)
	if *testPtr {
		c, err := container.New(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to initialize container: %v", err)
		}
		defer c.Cleanup()

		log.Printf("Sending test report through the %q reporter...", cfg.Crash.Reporter)
		err = c.Reporter.Report(ctx, "NON-FATAL ERROR reports test(): test report", `{"test": true}`)
		if err != nil {
			log.Fatalf("Failed to send report: %v", err)
		}
		log.Println("Report sent successfully!")
		return
	}

	if *viewPtr {
		viewEmails(cfg.AWS.EndpointURL)
		return
	}

	if *listPtr || *getPtr != "" {
		awsCfg, err := aws.LoadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			log.Fatalf("Failed to load AWS config: %v", err)
		}
		archive, err := aws.NewS3Reporter(awsCfg, cfg.AWS)
		if err != nil {
			log.Fatalf("Failed to initialize S3 reporter: %v", err)
		}

		if *getPtr != "" {
			data, err := archive.GetReport(ctx, *getPtr)
			if err != nil {
				log.Fatalf("Failed to get report: %v", err)
			}
			fmt.Println(string(data))
			return
		}

		keys, err := archive.ListReports(ctx)
		if err != nil {
			log.Fatalf("Failed to list reports: %v", err)
		}
		fmt.Printf("Found %d report(s) in %s:\n", len(keys), cfg.AWS.Bucket)
		for _, key := range keys {
			fmt.Println(key)
		}
		return
	}

	flag.Usage()
}

func viewEmails(endpoint string) {
	if endpoint == "" {
		endpoint = "http://localhost:4566"
	}
	log.Println("\n--- LocalStack SES Inbox ---")

	resp, err := http.Get(endpoint + "/_aws/ses")
	if err != nil {
		log.Printf("Failed to fetch LocalStack messages: %v", err)
		return
	}
	defer resp.Body.Close()

	bodyData, _ := io.ReadAll(resp.Body)
	var lsResp LocalStackResponse
	if err := json.Unmarshal(bodyData, &lsResp); err != nil {
		log.Printf("Failed to parse LocalStack response: %v\nRaw body: %s", err, string(bodyData))
		return
	}

	if len(lsResp.Messages) == 0 {
		fmt.Println("No reports found in LocalStack.")
		return
	}

	fmt.Printf("\nFound %d report(s):\n", len(lsResp.Messages))
	for i, msg := range lsResp.Messages {
		fmt.Printf("\n[%d] Time: %s\n", i+1, msg.Timestamp)
		fmt.Printf("To: %v\n", msg.Destination.ToAddresses)
		fmt.Printf("Subject: %s\n", msg.Subject)
		fmt.Printf("Body: %s\n", msg.Body.Text)
		fmt.Println("---------------------------------------------------")
	}
}
