// Package config loads the tokenkit CLI configuration.
//
// Configuration is read from a single config.yaml. The default directory is
// ~/.config/tokenkit; TOKENKIT_CONFIG_DIR or the --config-path flag select
// another one. A missing file is not an error: the defaults apply.
//
// # File Format
//
//	host: https://login.microsoftonline.com/
//	version: 2
//	redirectUri: http://localhost:1410/
//	cacheDir: /var/lib/tokenkit/tokens
//	defaultProfile: work
//	profiles:
//	  work:
//	    tenant: contoso
//	    app: 11111111-1111-1111-1111-111111111111
//	    scopes:
//	      - https://management.example.com/.default
//	  legacy:
//	    version: 1
//	    tenant: fabrikam
//	    resource: https://management.example.com/
//	    authType: device_code
//
// Profile fields override the top-level defaults. Secrets are never read from
// the file; pass them on the command line or through the environment.
package config
