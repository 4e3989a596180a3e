// designctl drives the chat and review engines against a backend from the
// terminal.
package main

func main() {
	Execute()
}
