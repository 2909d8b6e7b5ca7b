package httpcore_test

import (
	"context"
	"fmt"

	"github.com/riverglass/httpcore"
)

func ExampleClient_Do() {
	cl := httpcore.New(httpcore.WithUserAgent("httpcore-example/1.0"))
	defer cl.Close()

	resp, err := cl.Do(context.Background(), &httpcore.Request{
		Method: "GET",
		URL:    "http://www.example.com/",
	})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(resp.StatusCode)
}
