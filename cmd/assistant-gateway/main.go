package main

import "github.com/UndiFineD/obsidian-AI-assistant-sub001/cmd/assistant-gateway/cmd"

func main() {
	cmd.Execute()
}
