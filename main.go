// The main package for the newscrawler executable.
package main

import (
	"github.com/JakeFAU/crypto-news-crawler/cmd"
)

func main() {
	cmd.Execute()
}
