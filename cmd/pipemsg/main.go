// Command pipemsg serves and exercises local pipe endpoints.
package main

func main() {
	Execute()
}
