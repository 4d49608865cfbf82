package main

import "github.com/itsmostafa/replbridge/cmd"

func main() {
	cmd.Execute()
}
