package buildpipeline

// dockerfile templates are rendered through pongo2 instead of the
// accumulated fmt.Sprintf/string-concatenation the original build script
// used -- one readable template per framework. the only template variable
// is {{ internal_port }}; BASE_PATH reaches the image as a Docker build
// argument (ARG BASE_PATH), and nginx.conf is written verbatim.

const nextjsDockerfileTemplate = `FROM node:24-alpine3.21 AS deps
WORKDIR /app
COPY package.json package-lock.json* ./
RUN npm ci --only=production

FROM node:24-alpine3.21 AS builder
WORKDIR /app

ARG BASE_PATH
ENV BASE_PATH=${BASE_PATH}

COPY package.json package-lock.json* ./
RUN npm ci
COPY . .

RUN npm run build

FROM node:24-alpine3.21 AS runner
WORKDIR /app

ARG BASE_PATH
ENV BASE_PATH=${BASE_PATH}
ENV NODE_ENV=production
ENV HOSTNAME="0.0.0.0"

RUN addgroup --system --gid 1001 nodejs
RUN adduser --system --uid 1001 nextjs

COPY --from=builder /app/next.config.* ./
COPY --from=builder /app/public ./public
COPY --from=builder --chown=nextjs:nodejs /app/.next ./.next
COPY --from=builder /app/node_modules ./node_modules
COPY --from=builder /app/package.json ./package.json

USER nextjs
EXPOSE {{ internal_port }}
CMD ["npm", "start"]
`

const staticDockerfileTemplate = `FROM node:24-alpine3.21 AS builder
WORKDIR /app

ARG BASE_PATH
ENV BASE_PATH=${BASE_PATH}

COPY package.json package-lock.json* ./
RUN npm ci

COPY . .

RUN npm run build && ls -la dist/ || (echo "ERROR: dist/ directory not found" && exit 1)

FROM nginx:alpine AS runner

COPY --from=builder /app/dist /usr/share/nginx/html

COPY nginx.conf /etc/nginx/conf.d/default.conf

EXPOSE 80
CMD ["nginx", "-g", "daemon off;"]
`

const nginxConfTemplate = `server {
    listen 80;
    server_name localhost;

    root /usr/share/nginx/html;
    index index.html;

    location / {
        try_files $uri $uri/ /index.html;
    }

    location ~* \.(js|css|png|jpg|jpeg|gif|ico|svg|woff|woff2|ttf|eot)$ {
        expires 1y;
        add_header Cache-Control "public, immutable";
    }
}
`

const dockerignoreContent = `node_modules
.next
.git
.env*.local
npm-debug.log*
README.md
.dockerignore
Dockerfile
`
