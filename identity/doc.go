// Package identity talks to the Firebase identity provider.
//
// Client wraps the Identity Toolkit and Secure Token REST APIs with one generic typed
// call and a thin function per resource. Admin abstracts the Firebase Admin SDK
// operations the session handlers need; FirebaseAdmin implements it.
//
// # What this package must NOT do
//
//   - Set cookies or build HTTP responses for end users.
//   - Retry anything but network failures that happened before a response arrived.
package identity
