// cmd/siggenctl/main.go
package main

func main() {
	Execute()
}
