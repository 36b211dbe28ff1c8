package main

import "github.com/vibast-solutions/ms-go-payment-gateway/cmd"

func main() {
	cmd.Execute()
}
