// Command fbdbg is an interactive command-line front-end that drives
// an external Debug Adapter Protocol adapter process.
package main

func main() {
	Execute()
}
