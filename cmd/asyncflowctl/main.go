// Command asyncflowctl inspects AsyncAPI documents the way the asyncflow client
// resolves them.
package main

func main() {
	Execute()
}
