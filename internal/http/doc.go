// Package httpapp provides the HTTP server for vhibes.
//
//	@title						vhibes API
//	@version					1.0
//	@description				Points, streaks, challenge chains and achievement badges for a social app.
//	@description
//	@description				## Authentication Flow
//	@description
//	@description				Write operations require a bearer token bound to a secp256k1 address.
//	@description
//	@description				### Step 1: Get a Challenge
//	@description				```bash
//	@description				curl -X POST /api/auth/challenge -d '{"address":"0xabc..."}'
//	@description				```
//	@description
//	@description				### Step 2: Sign and Verify
//	@description				Sign the challenge with personal_sign and exchange it for a token.
//	@description				```bash
//	@description				curl -X POST /api/auth/verify -d '{
//	@description				  "address": "0xabc...",
//	@description				  "challenge": "vhibes login ...",
//	@description				  "signature": "0x..."
//	@description				}'
//	@description				```
//	@description
//	@description				### Step 3: Use the Token
//	@description				```bash
//	@description				curl -X POST /api/challenges -H "Authorization: Bearer TOKEN" -d '{"prompt_text":"roast my cat"}'
//	@description				```
//	@description
//	@description				Administrative calls authenticate as the owner with the `X-Admin-Secret` header.
//
//	@contact.name				vhibes
//	@license.name				MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//
//	@tag.name					Authentication
//	@tag.description			Challenge-response login. Sign the challenge with the address key and exchange it for a bearer token.
//
//	@tag.name					Accounts
//	@tag.description			Balances, streaks, levels and badge eligibility.
//
//	@tag.name					Points
//	@tag.description			Daily login and point transfers by authorized collaborators.
//
//	@tag.name					Activity
//	@tag.description			Activity reports from collaborating features.
//
//	@tag.name					Challenges
//	@tag.description			Prompts with threaded responses. Responses may reply to earlier responses to any depth.
//
//	@tag.name					Badges
//	@tag.description			Achievement badges, each claimable once per account.
//
//	@tag.name					Records
//	@tag.description			Ordered change feed for indexers.
//
//	@tag.name					Admin
//	@tag.description			Owner-only configuration. Requires X-Admin-Secret header.
package httpapp
