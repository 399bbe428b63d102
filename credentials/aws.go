package credentials

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// defaultAWSRegion is the fallback region when none is specified.
const defaultAWSRegion = "us-west-2"

// bedrockService is the SigV4 service name for the Bedrock runtime.
const bedrockService = "bedrock"

// BedrockEndpoint returns the Bedrock runtime endpoint URL for a region.
func BedrockEndpoint(region string) string {
	return fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", region)
}

// AWSCredential signs requests with SigV4 for the Bedrock runtime. It
// resolves credentials through the standard AWS chain, so IRSA, instance
// profiles, and AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY all work.
type AWSCredential struct {
	cfg    aws.Config
	region string
}

// NewAWSCredential creates an AWS credential using the default credential
// chain.
func NewAWSCredential(ctx context.Context, region string) (*AWSCredential, error) {
	if region == "" {
		region = defaultAWSRegion
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSCredential{
		cfg:    cfg,
		region: region,
	}, nil
}

// NewAWSCredentialWithRole creates an AWS credential that assumes a role
// via STS before signing.
func NewAWSCredentialWithRole(ctx context.Context, region, roleARN string) (*AWSCredential, error) {
	if region == "" {
		region = defaultAWSRegion
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	stsClient := sts.NewFromConfig(cfg)
	cfg.Credentials = stscreds.NewAssumeRoleProvider(stsClient, roleARN)

	return &AWSCredential{
		cfg:    cfg,
		region: region,
	}, nil
}

// NewAWSCredentialFromConfig wraps an already-resolved aws.Config. Used by
// tests to inject static credentials without touching the environment.
func NewAWSCredentialFromConfig(cfg aws.Config, region string) *AWSCredential {
	if region == "" {
		region = defaultAWSRegion
	}
	return &AWSCredential{cfg: cfg, region: region}
}

// Apply signs the request using SigV4.
func (c *AWSCredential) Apply(ctx context.Context, req *http.Request) error {
	creds, err := c.cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}

	return signRequest(req, &creds, c.region, bedrockService)
}

// Type returns "aws".
func (c *AWSCredential) Type() string {
	return "aws"
}

// Region returns the configured AWS region.
func (c *AWSCredential) Region() string {
	return c.region
}

// Config returns the AWS config for advanced use cases.
func (c *AWSCredential) Config() aws.Config {
	return c.cfg
}

// signRequest signs an HTTP request using AWS SigV4.
func signRequest(req *http.Request, creds *aws.Credentials, region, service string) error {
	t := time.Now().UTC()
	amzDate := t.Format("20060102T150405Z")
	dateStamp := t.Format("20060102")

	// Read and hash the body
	var bodyHash string
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return fmt.Errorf("failed to read request body: %w", err)
		}
		req.Body = io.NopCloser(strings.NewReader(string(body)))
		bodyHash = hashSHA256(body)
	} else {
		bodyHash = hashSHA256([]byte{})
	}

	req.Header.Set("X-Amz-Date", amzDate)
	req.Header.Set("X-Amz-Content-Sha256", bodyHash)
	if creds.SessionToken != "" {
		req.Header.Set("X-Amz-Security-Token", creds.SessionToken)
	}

	// Create canonical request.
	// URI-encode each path segment per SigV4 spec — characters like ':' in
	// Bedrock model IDs (e.g. "v1:0") must be percent-encoded.
	canonicalURI := uriEncodePath(req.URL.Path)
	if canonicalURI == "" {
		canonicalURI = "/"
	}
	canonicalQueryString := req.URL.RawQuery

	signedHeaders := getSignedHeaders(req)
	canonicalHeaders := getCanonicalHeaders(req, signedHeaders)

	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI,
		canonicalQueryString,
		canonicalHeaders,
		strings.Join(signedHeaders, ";"),
		bodyHash,
	}, "\n")

	algorithm := "AWS4-HMAC-SHA256"
	credentialScope := fmt.Sprintf("%s/%s/%s/aws4_request", dateStamp, region, service)
	stringToSign := strings.Join([]string{
		algorithm,
		amzDate,
		credentialScope,
		hashSHA256([]byte(canonicalRequest)),
	}, "\n")

	signingKey := getSignatureKey(creds.SecretAccessKey, dateStamp, region, service)
	signature := hmacSHA256Hex(signingKey, stringToSign)

	authHeader := fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algorithm,
		creds.AccessKeyID,
		credentialScope,
		strings.Join(signedHeaders, ";"),
		signature,
	)
	req.Header.Set("Authorization", authHeader)

	return nil
}

// uriEncodePath URI-encodes each segment of a path per the SigV4 spec.
// Slashes are preserved; all other reserved characters are percent-encoded.
func uriEncodePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = uriEncode(seg)
	}
	return strings.Join(segments, "/")
}

// uriEncode percent-encodes a URI component per RFC 3986.
// Unreserved characters (A-Z a-z 0-9 - _ . ~) are not encoded.
func uriEncode(s string) string {
	var buf strings.Builder
	for _, b := range []byte(s) {
		if isUnreserved(b) {
			buf.WriteByte(b)
		} else {
			fmt.Fprintf(&buf, "%%%02X", b)
		}
	}
	return buf.String()
}

// isUnreserved returns true for RFC 3986 unreserved characters.
func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.' || c == '~'
}

// getSignedHeaders returns the list of headers to sign, sorted.
// Authorization and User-Agent are excluded per the SigV4 spec; host is
// always included.
func getSignedHeaders(req *http.Request) []string {
	headers := make([]string, 0)
	for name := range req.Header {
		lowerName := strings.ToLower(name)
		if lowerName != "authorization" && lowerName != "user-agent" {
			headers = append(headers, lowerName)
		}
	}
	headers = append(headers, "host")
	sort.Strings(headers)
	return headers
}

// getCanonicalHeaders returns the canonical header string.
func getCanonicalHeaders(req *http.Request, signedHeaders []string) string {
	var builder strings.Builder
	for _, name := range signedHeaders {
		if name == "host" {
			builder.WriteString(fmt.Sprintf("host:%s\n", req.Host))
		} else {
			values := req.Header.Values(http.CanonicalHeaderKey(name))
			builder.WriteString(fmt.Sprintf("%s:%s\n", name, strings.Join(values, ",")))
		}
	}
	return builder.String()
}

// hashSHA256 returns the SHA256 hash of data as a hex string.
func hashSHA256(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// hmacSHA256 returns HMAC-SHA256 of data using key.
func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

// hmacSHA256Hex returns HMAC-SHA256 as hex string.
func hmacSHA256Hex(key []byte, data string) string {
	return hex.EncodeToString(hmacSHA256(key, data))
}

// getSignatureKey derives the signing key for SigV4.
func getSignatureKey(secret, dateStamp, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), dateStamp)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	kSigning := hmacSHA256(kService, "aws4_request")
	return kSigning
}
