package main

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

func client() *resty.Client {
	c := resty.New().
		SetBaseURL(apiFlag).
		SetTimeout(15 * time.Second).
		SetHeader("Content-Type", "application/json")
	if keyFlag != "" {
		c.SetAuthToken(keyFlag)
	}
	return c
}

func doGet(path string) (string, error) {
	resp, err := client().R().Get(path)
	return checkResp(resp, err)
}

func doPostJSON(path string, payload interface{}) (string, error) {
	resp, err := client().R().SetBody(payload).Post(path)
	return checkResp(resp, err)
}

func doDelete(path string) (string, error) {
	resp, err := client().R().Delete(path)
	return checkResp(resp, err)
}

func checkResp(resp *resty.Response, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("http %d: %s", resp.StatusCode(), resp.String())
	}
	return resp.String(), nil
}
