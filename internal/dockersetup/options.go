package dockersetup

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	dockerclient "github.com/docker/docker/client"
	"github.com/docker/go-connections/sockets"
	"github.com/docker/go-connections/tlsconfig"
	"github.com/spf13/pflag"
)

const (
	// EnvEnableTLS enables TLS for tcp connections when set to a non-empty value.
	EnvEnableTLS = "DOCKER_TLS"

	DefaultCaFile   = "ca.pem"
	DefaultKeyFile  = "key.pem"
	DefaultCertFile = "cert.pem"
	FlagTLSVerify   = "docker-tlsverify"
)

type Options struct {
	Host       string `env:"DOCKER_HOST"`
	TLS        bool
	TLSVerify  bool
	TLSOptions *tlsconfig.Options
}

func defaultCertPath() string {
	if p := os.Getenv(dockerclient.EnvOverrideCertPath); p != "" {
		return p
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".docker")
}

func (o *Options) BindFlags(flags *pflag.FlagSet) {
	certPath := defaultCertPath()
	host := os.Getenv(dockerclient.EnvOverrideHost)
	if host == "" {
		host = dockerclient.DefaultDockerHost
	}

	flags.StringVar(&o.Host, "docker-host", host, "Docker daemon socket to connect to")
	flags.BoolVar(&o.TLS, "docker-tls", os.Getenv(EnvEnableTLS) != "", "Use TLS; implied by --docker-tlsverify")
	flags.BoolVar(&o.TLSVerify, FlagTLSVerify, os.Getenv(dockerclient.EnvTLSVerify) != "", "Use TLS and verify the remote")

	o.TLSOptions = &tlsconfig.Options{
		CAFile:   filepath.Join(certPath, DefaultCaFile),
		CertFile: filepath.Join(certPath, DefaultCertFile),
		KeyFile:  filepath.Join(certPath, DefaultKeyFile),
	}

	flags.StringVar(&o.TLSOptions.CAFile, "docker-tlscacert", o.TLSOptions.CAFile, "Trust certs signed only by this CA")
	flags.StringVar(&o.TLSOptions.CertFile, "docker-tlscert", o.TLSOptions.CertFile, "Path to TLS certificate file")
	flags.StringVar(&o.TLSOptions.KeyFile, "docker-tlskey", o.TLSOptions.KeyFile, "Path to TLS key file")
}

func (o *Options) Build() (*dockerclient.Client, error) {
	host := o.Host
	if host == "" {
		host = dockerclient.DefaultDockerHost
	}

	hostURL, err := dockerclient.ParseHostURL(host)
	if err != nil {
		return nil, err
	}

	if o.TLSVerify {
		o.TLS = true
	}

	httpClient, err := o.httpClient(hostURL)
	if err != nil {
		return nil, err
	}

	opts := []dockerclient.Opt{
		dockerclient.WithHost(host),
		dockerclient.WithHTTPClient(httpClient),
		dockerclient.WithUserAgent("matrun"),
		dockerclient.WithAPIVersionNegotiation(),
	}

	if o.TLS && o.TLSOptions != nil {
		opts = append(opts, dockerclient.WithTLSClientConfig(o.TLSOptions.CAFile, o.TLSOptions.CertFile, o.TLSOptions.KeyFile))
	}

	return dockerclient.NewClientWithOpts(opts...)
}

func (o *Options) httpClient(hostURL *url.URL) (*http.Client, error) {
	transport := &http.Transport{}

	if o.TLS {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: !o.TLSVerify,
		}
	}

	if err := sockets.ConfigureTransport(transport, hostURL.Scheme, hostURL.Host); err != nil {
		return nil, err
	}

	return &http.Client{
		Transport:     transport,
		CheckRedirect: dockerclient.CheckRedirect,
	}, nil
}
