// SPDX-License-Identifier: MPL-2.0

package main

import cmd "interpd/cmd/interpd"

func main() {
	cmd.Execute()
}
