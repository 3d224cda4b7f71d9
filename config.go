package walletgo

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Database struct {
		ConnectionString string `yaml:"conn_str"`
	} `yaml:"database"`
	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`
	Notify struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"notify"`
	Roles struct {
		Payer Role `yaml:"payer"`
		Payee Role `yaml:"payee"`
	} `yaml:"roles"`
	Limits struct {
		Pay          int64 `yaml:"pay"`
		AdminCredit  int64 `yaml:"admin_credit"`
		Transactions int64 `yaml:"transactions"`
	} `yaml:"limits"`
}
