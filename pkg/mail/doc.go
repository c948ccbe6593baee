// Package mail delivers escalation notification e-mails over SMTP with
// synchronous retries and an asynchronous bounded queue.
package mail
