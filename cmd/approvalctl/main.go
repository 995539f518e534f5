// Command approvalctl administers an approval gateway deployment: identity
// mappings, manual timeout sweeps, audit exports and Telegram webhook setup.
package main

func main() {
	Execute()
}
