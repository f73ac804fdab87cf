/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package main

import "github.com/hamsternav/hamsternav/cmd"

func main() {
	cmd.Execute()
}
