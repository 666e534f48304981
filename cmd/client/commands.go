package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"gitlab.com/dirk.krummacker/birthday-service/internal/service"
	"gitlab.com/dirk.krummacker/birthday-service/pkg/model"
)

func runImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0]) // nosemgrep
	if err != nil {
		return err
	}
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(args[0]))
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	resBody, status, err := send(http.MethodPost, "/contacts-import", &body, writer.FormDataContentType())
	if err != nil {
		return err
	}
	var report model.ImportReport
	if err := json.Unmarshal(resBody, &report); err != nil {
		return fmt.Errorf("unexpected answer (%d): %s", status, resBody)
	}
	fmt.Fprintln(cmd.OutOrStdout(), report.Message)
	for _, e := range report.Errors {
		fmt.Fprintln(cmd.OutOrStdout(), "  "+e)
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	resBody, status, err := send(http.MethodGet, "/contacts-export", nil, "")
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("export failed (%d): %s", status, resBody)
	}
	_, err = cmd.OutOrStdout().Write(resBody)
	return err
}

func runUpcoming(cmd *cobra.Command, _ []string) error {
	resBody, status, err := send(http.MethodGet, fmt.Sprintf("/contacts/upcoming?days=%d", days), nil, "")
	if err != nil {
		return err
	}
	var upcoming []model.UpcomingBirthday
	if err := json.Unmarshal(resBody, &upcoming); err != nil {
		return fmt.Errorf("unexpected answer (%d): %s", status, resBody)
	}
	for _, u := range upcoming {
		age := ""
		if u.AgeTurning != nil {
			age = fmt.Sprintf(" (turns %d)", *u.AgeTurning)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  in %3d days  %s%s\n", u.Date, u.DaysUntil, u.Name, age)
	}
	return nil
}

func runRemind(cmd *cobra.Command, _ []string) error {
	resBody, status, err := send(http.MethodPost, "/reminders/run", nil, "")
	if err != nil {
		return err
	}
	var run model.ReminderRun
	if err := json.Unmarshal(resBody, &run); err != nil || status != http.StatusOK {
		return fmt.Errorf("reminder run failed (%d): %s", status, resBody)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d users, %d sent, %d skipped\n", run.Date, run.Users, run.Sent, run.Skipped)
	for _, f := range run.Failures {
		fmt.Fprintln(cmd.OutOrStdout(), "  "+f)
	}
	return nil
}

// send executes a request for the configured user, with the operator credentials when a token is
// set, and returns the body and status of the answer.
func send(method, path string, body io.Reader, contentType string) ([]byte, int, error) {
	req, err := http.NewRequest(method, serverURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set(service.UserHeader, fmt.Sprint(userID))
	if operatorToken != "" {
		req.SetBasicAuth(service.OperatorUser, operatorToken)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("error making http request: %w", err)
	}
	defer res.Body.Close()
	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("could not read response body: %w", err)
	}
	return resBody, res.StatusCode, nil
}
