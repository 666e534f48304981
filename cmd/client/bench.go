package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"gitlab.com/dirk.krummacker/birthday-service/pkg/model"
)

var benchBody = []byte(`{
	"name": "Marcus Antonius",
	"phone": "+39 999 777 555",
	"birthday": "--01-14"
}`)

// runBench creates, updates, reads and deletes contacts in rounds of the configured sizes. The
// user should be on a plan without quota, otherwise the updates hit locked contacts.
func runBench(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Elements      POST       PUT       GET    DELETE ")
	fmt.Fprintln(out, "---------------------------------------------------")
	for _, loops := range sizes {
		if loops < 1 {
			continue
		}
		fmt.Fprintf(out, "%10d", loops)
		ids := make([]int64, 0, loops)
		var duration int64
		for i := 0; i < loops; i++ {
			id, d, err := timedCreate()
			if err != nil {
				return err
			}
			ids = append(ids, id)
			duration += d
		}
		fmt.Fprintf(out, "%10d", duration/int64(loops*1000))

		for _, method := range []string{http.MethodPut, http.MethodGet, http.MethodDelete} {
			d, err := callInLoop(ids, method)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%10d", d/int64(loops*1000))
		}
		fmt.Fprintln(out)
	}
	return nil
}

func timedCreate() (int64, int64, error) {
	before := time.Now().UnixNano()
	resBody, status, err := send(http.MethodPost, "/contacts", bytes.NewReader(benchBody), "application/json")
	after := time.Now().UnixNano()
	if err != nil {
		return 0, 0, err
	}
	var contact model.Contact
	if err := json.Unmarshal(resBody, &contact); err != nil || status != http.StatusCreated {
		return 0, 0, fmt.Errorf("could not create contact (%d): %s", status, resBody)
	}
	return contact.Id, after - before, nil
}

// callInLoop sends one request per id in random order and returns the summed duration.
func callInLoop(ids []int64, method string) (int64, error) {
	shuffled := append([]int64(nil), ids...)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	var duration int64
	for _, id := range shuffled {
		var body *bytes.Reader
		contentType := ""
		if method == http.MethodPut {
			body, contentType = bytes.NewReader(benchBody), "application/json"
		}
		before := time.Now().UnixNano()
		var err error
		if body != nil {
			_, _, err = send(method, fmt.Sprintf("/contacts/%d", id), body, contentType)
		} else {
			_, _, err = send(method, fmt.Sprintf("/contacts/%d", id), nil, contentType)
		}
		if err != nil {
			return 0, err
		}
		duration += time.Now().UnixNano() - before
	}
	return duration, nil
}
