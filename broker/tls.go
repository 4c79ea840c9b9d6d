package broker

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/houseofcat/rabbitreader/models"
)

// CreateTLSConfig builds the client TLS config for serverName.
// VerifyPeer off skips all verification. VerifyPeer on with VerifyPeerName off checks the chain but not the host name.
func CreateTLSConfig(tlsConfig *models.TLSConfig, serverName string) (*tls.Config, error) {

	config := &tls.Config{
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}

	if tlsConfig.CAFile != "" {
		caCert, err := os.ReadFile(tlsConfig.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read cafile: %w", err)
		}

		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificates found in cafile %s", tlsConfig.CAFile)
		}

		config.RootCAs = caPool
	}

	if tlsConfig.LocalCert != "" || tlsConfig.LocalKey != "" {
		if tlsConfig.LocalCert == "" || tlsConfig.LocalKey == "" {
			return nil, errors.New("local_cert and local_pk must be set together")
		}

		cert, err := tls.LoadX509KeyPair(tlsConfig.LocalCert, tlsConfig.LocalKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}

		config.Certificates = []tls.Certificate{cert}
	}

	switch {
	case !tlsConfig.VerifyPeer:
		config.InsecureSkipVerify = true
	case !tlsConfig.VerifyPeerName:
		// the standard verification always checks the name, so do the chain check ourselves
		config.InsecureSkipVerify = true
		config.VerifyPeerCertificate = verifyChainOnly(config.RootCAs)
	}

	return config, nil
}

func verifyChainOnly(roots *x509.CertPool) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {

		if len(rawCerts) == 0 {
			return errors.New("server presented no certificates")
		}

		certs := make([]*x509.Certificate, 0, len(rawCerts))
		for _, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return err
			}
			certs = append(certs, cert)
		}

		intermediates := x509.NewCertPool()
		for _, cert := range certs[1:] {
			intermediates.AddCert(cert)
		}

		_, err := certs[0].Verify(x509.VerifyOptions{
			Roots:         roots,
			Intermediates: intermediates,
		})
		return err
	}
}
