package main

import "github.com/oneclickdz/ocpay-reconciler/cmd"

func main() {
	cmd.Execute()
}
