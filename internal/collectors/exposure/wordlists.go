package exposure

// dorkTemplates expand against the target to produce search queries for
// the dork-generation phase. %s is the target domain.
var dorkTemplates = []string{
	"site:%s",
	"site:%s filetype:pdf",
	"site:%s filetype:doc",
	"site:%s filetype:docx",
	"site:%s filetype:xls",
	"site:%s filetype:xlsx",
	"site:%s filetype:ppt",
	"site:%s filetype:txt",
	"site:%s filetype:csv",
	"site:%s filetype:xml",
	"site:%s filetype:json",
	"site:%s filetype:sql",
	"site:%s filetype:log",
	"site:%s filetype:env",
	"site:%s filetype:ini",
	"site:%s filetype:conf",
	"site:%s filetype:config",
	"site:%s filetype:bak",
	"site:%s filetype:backup",
	"site:%s filetype:old",
	"site:%s filetype:sh",
	"site:%s filetype:yaml",
	"site:%s filetype:yml",
	"site:%s inurl:admin",
	"site:%s inurl:login",
	"site:%s inurl:signin",
	"site:%s inurl:register",
	"site:%s inurl:dashboard",
	"site:%s inurl:portal",
	"site:%s inurl:cpanel",
	"site:%s inurl:phpmyadmin",
	"site:%s inurl:wp-admin",
	"site:%s inurl:wp-content",
	"site:%s inurl:config",
	"site:%s inurl:backup",
	"site:%s inurl:db",
	"site:%s inurl:database",
	"site:%s inurl:api",
	"site:%s inurl:dev",
	"site:%s inurl:test",
	"site:%s inurl:staging",
	"site:%s inurl:beta",
	"site:%s inurl:internal",
	"site:%s inurl:private",
	"site:%s inurl:secret",
	"site:%s inurl:upload",
	"site:%s inurl:download",
	"site:%s inurl:file",
	"site:%s inurl:ftp",
	"site:%s intitle:\"index of\"",
	"site:%s intitle:\"index of\" \"parent directory\"",
	"site:%s intitle:\"index of\" passwd",
	"site:%s intitle:\"index of\" password",
	"site:%s intitle:\"index of\" backup",
	"site:%s intitle:\"index of\" .git",
	"site:%s intitle:login",
	"site:%s intitle:admin",
	"site:%s intext:password",
	"site:%s intext:username",
	"site:%s intext:\"api key\"",
	"site:%s intext:\"api_key\"",
	"site:%s intext:\"secret_key\"",
	"site:%s intext:\"access_token\"",
	"site:%s intext:\"BEGIN RSA PRIVATE KEY\"",
	"site:%s intext:\"mysql_connect\"",
	"site:%s intext:\"sql syntax near\"",
	"site:%s intext:\"error in your SQL syntax\"",
	"site:%s intext:\"Warning: mysql\"",
	"site:%s intext:phpinfo",
	"site:%s ext:php intitle:phpinfo",
	"site:%s \"confidential\"",
	"site:%s \"internal use only\"",
	"site:%s \"not for distribution\"",
	"cache:%s",
	"link:%s",
}

// subdomainPrefixes is the fixed enumeration wordlist
var subdomainPrefixes = []string{
	"www", "mail", "email", "webmail", "smtp", "pop", "pop3", "imap",
	"ftp", "sftp", "ns", "ns1", "ns2", "ns3", "dns", "mx", "mx1", "mx2",
	"api", "api-dev", "api-staging", "app", "apps", "mobile", "m",
	"dev", "development", "test", "testing", "qa", "uat", "staging",
	"stage", "beta", "alpha", "demo", "sandbox", "preview",
	"admin", "administrator", "manage", "management", "portal",
	"dashboard", "panel", "cpanel", "whm", "plesk", "webadmin",
	"blog", "news", "forum", "community", "support", "help", "helpdesk",
	"docs", "documentation", "wiki", "kb", "faq",
	"shop", "store", "cart", "checkout", "pay", "payment", "billing",
	"secure", "ssl", "vpn", "remote", "gateway", "proxy", "firewall",
	"cdn", "static", "assets", "media", "img", "images", "files",
	"upload", "uploads", "download", "downloads", "backup", "backups",
	"db", "database", "mysql", "sql", "postgres", "redis", "mongo",
	"git", "gitlab", "svn", "jenkins", "ci", "build", "deploy",
	"monitor", "monitoring", "status", "stats", "metrics", "grafana",
	"intranet", "internal", "corp", "office", "hr", "crm", "erp",
	"cloud", "aws", "azure", "k8s", "kubernetes", "docker",
	"auth", "sso", "login", "id", "identity", "accounts",
}

// endpointPaths is the fixed endpoint probe list. Severity is assigned by
// classifyEndpoint.
var endpointPaths = []string{
	"/robots.txt",
	"/sitemap.xml",
	"/.well-known/security.txt",
	"/crossdomain.xml",
	"/phpinfo.php",
	"/info.php",
	"/test.php",
	"/server-status",
	"/server-info",
	"/.git/",
	"/.git/HEAD",
	"/.svn/",
	"/.env",
	"/.htaccess",
	"/.htpasswd",
	"/.DS_Store",
	"/web.config",
	"/wp-login.php",
	"/wp-admin/",
	"/wp-json/wp/v2/users",
	"/xmlrpc.php",
	"/administrator/",
	"/admin/",
	"/admin/login",
	"/login",
	"/signin",
	"/register",
	"/api/",
	"/api/v1/",
	"/api/v2/",
	"/api/swagger.json",
	"/swagger-ui.html",
	"/swagger/index.html",
	"/openapi.json",
	"/graphql",
	"/graphiql",
	"/actuator",
	"/actuator/health",
	"/actuator/env",
	"/debug/pprof/",
	"/console",
	"/jmx-console/",
	"/manager/html",
	"/elmah.axd",
	"/trace.axd",
	"/status",
	"/health",
	"/metrics",
	"/backup/",
	"/old/",
	"/temp/",
}

// sensitiveFilePaths are fetched in the sensitive-file phase; a 200 with a
// risky extension is critical or high.
var sensitiveFilePaths = []string{
	"/.env",
	"/.env.local",
	"/.env.production",
	"/.env.backup",
	"/config.php",
	"/config.php.bak",
	"/configuration.php",
	"/settings.php",
	"/wp-config.php",
	"/wp-config.php.bak",
	"/database.yml",
	"/database.sql",
	"/db.sql",
	"/dump.sql",
	"/backup.sql",
	"/backup.zip",
	"/backup.tar.gz",
	"/site.zip",
	"/www.zip",
	"/wwwroot.zip",
	"/application.properties",
	"/appsettings.json",
	"/secrets.json",
	"/credentials.json",
	"/id_rsa",
	"/id_rsa.pub",
	"/server.key",
	"/private.key",
	"/privatekey.pem",
	"/key.pem",
	"/access.log",
	"/error.log",
	"/error_log",
	"/debug.log",
	"/npm-debug.log",
	"/composer.json",
	"/composer.lock",
	"/package.json",
	"/yarn.lock",
	"/Dockerfile",
	"/docker-compose.yml",
}

// riskyExtensions maps a sensitive file extension to its severity weight;
// true = critical, false = high
var riskyExtensions = map[string]bool{
	".env":  true,
	".key":  true,
	".pem":  true,
	".sql":  true,
	".bak":  false,
	".log":  false,
	".yml":  false,
	".json": false,
	".zip":  false,
	".gz":   false,
}

// vcsMarkers are source-control directory markers; any 200 is critical
var vcsMarkers = []string{
	"/.git/config",
	"/.git/HEAD",
	"/.git/index",
	"/.svn/entries",
	"/.svn/wc.db",
	"/.hg/requires",
	"/.hg/store",
	"/.bzr/branch-format",
	"/CVS/Root",
	"/CVS/Entries",
}

// adminPanelPaths is the known-panels probe list
var adminPanelPaths = []string{
	"/admin",
	"/admin/",
	"/admin/login",
	"/admin.php",
	"/administrator",
	"/administrator/index.php",
	"/wp-admin",
	"/wp-login.php",
	"/user/login",
	"/users/sign_in",
	"/manager/html",
	"/phpmyadmin/",
	"/pma/",
	"/myadmin/",
	"/cpanel",
	"/webmail",
	"/plesk",
	"/panel",
	"/dashboard",
	"/console",
	"/管理",
	"/admincp",
	"/moderator",
	"/webadmin",
	"/adminarea",
	"/bb-admin",
	"/adminLogin",
	"/admin_area",
	"/instadmin",
	"/memberadmin",
}

// loginIndicators are body substrings that confirm a login surface when
// the status code alone is ambiguous
var loginIndicators = []string{
	"type=\"password\"",
	"type='password'",
	"login",
	"sign in",
	"username",
	"forgot password",
	"remember me",
	"csrf",
}

// configFilePaths are probed in the config-file phase
var configFilePaths = []string{
	"/config.json",
	"/config.yml",
	"/config.yaml",
	"/config.xml",
	"/config.ini",
	"/app.config",
	"/web.config",
	"/settings.ini",
	"/settings.json",
	"/parameters.yml",
	"/local.settings.json",
	"/firebase.json",
	"/.aws/credentials",
	"/.npmrc",
	"/.dockercfg",
}

// configMarkers in a fetched body confirm an exposed config file
var configMarkers = []string{
	"password",
	"passwd",
	"secret",
	"api_key",
	"apikey",
	"access_key",
	"private_key",
	"connectionstring",
	"host",
	"port",
}
