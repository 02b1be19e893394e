// Package prompt asks the user for passwords, confirmations and typed tokens.
package prompt
